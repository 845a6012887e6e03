package normalize

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calyptra/serialhub/internal/catalog"
)

func fptr(f float64) *float64 { return &f }

func TestNormalize_LabelVariantsShareOneNumber(t *testing.T) {
	t.Parallel()

	for _, label := range []string{"Chapter 10", "Ch. 10.0", "#10", "chapter 10.00", "CH 10"} {
		nc := Normalize(label, "")
		require.NotNil(t, nc.Number, "label %q", label)
		require.Equal(t, "10", CanonicalString(nc.Number), "label %q", label)
		require.Equal(t, catalog.ChapterNormal, nc.Type, "label %q", label)
		require.Equal(t, "normal-10", nc.Slug, "label %q", label)
	}
}

func TestNormalize_FractionalChapters(t *testing.T) {
	t.Parallel()

	nc := Normalize("Chapter 10.5", "")
	require.Equal(t, "10.5", CanonicalString(nc.Number))
	require.Equal(t, "normal-10.5", nc.Slug)
}

func TestNormalize_TypeClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		label string
		title string
		want  catalog.ChapterType
	}{
		{"Chapter 4 Extra", "", catalog.ChapterExtra},
		{"Extras", "", catalog.ChapterExtra},
		{"Special 2", "", catalog.ChapterSpecial},
		{"Oneshot", "", catalog.ChapterSpecial},
		{"One-Shot", "", catalog.ChapterSpecial},
		{"Omake", "", catalog.ChapterSpecial},
		{"S2 12", "", catalog.ChapterSpecial},
		{"Chapter 12", "The Long Road", catalog.ChapterNormal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Normalize(tc.label, tc.title).Type, "label %q", tc.label)
	}
}

func TestNormalize_NeverErrorsOnGarbage(t *testing.T) {
	t.Parallel()

	for _, label := range []string{"", "???", "おまけ", strconv.Itoa(1 << 30), "ch.", "# "} {
		nc := Normalize(label, "")
		require.NotEmpty(t, nc.Slug, "label %q", label)
	}

	nc := Normalize("", "")
	require.Nil(t, nc.Number)
	require.Equal(t, "normal-unknown", nc.Slug)
}

func TestNormalize_NumberlessWithTitleUsesBoundedHash(t *testing.T) {
	t.Parallel()

	a := Normalize("Side Story", "The Beach Episode!")
	b := Normalize("side story", "the beach episode")
	require.Nil(t, a.Number)
	require.Equal(t, a.Slug, b.Slug, "punctuation and case must not change the hash")
	require.Len(t, a.Slug, 12)
}

func TestCanonicalString_IdempotentUnderReparse(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"1":     "1",
		"1.0":   "1",
		"1.00":  "1",
		"1.50":  "1.5",
		"103.5": "103.5",
	}
	for in, want := range cases {
		f, err := strconv.ParseFloat(in, 64)
		require.NoError(t, err)
		got := CanonicalString(&f)
		require.Equal(t, want, got)

		again, err := strconv.ParseFloat(got, 64)
		require.NoError(t, err)
		require.Equal(t, got, CanonicalString(&again), "re-parsing %q must be stable", got)
	}
	require.Equal(t, UnknownNumber, CanonicalString(nil))
}

func TestShouldMerge_EqualNumberAndType(t *testing.T) {
	t.Parallel()

	a := Normalize("Chapter 10", "")
	b := Normalize("#10", "")
	require.True(t, ShouldMerge(a, b, nil, nil))

	c := Normalize("Chapter 11", "")
	require.False(t, ShouldMerge(a, c, nil, nil))

	special := Normalize("Special 10", "")
	require.False(t, ShouldMerge(a, special, nil, nil), "same number, different type")
}

func TestShouldMerge_NumberAgainstNumberless(t *testing.T) {
	t.Parallel()

	a := Normalize("Chapter 10", "")
	b := Normalize("Side Story", "Beach")
	require.False(t, ShouldMerge(a, b, nil, nil))
}

func TestShouldMerge_NumberlessFallsBackToHashAndWindow(t *testing.T) {
	t.Parallel()

	a := Normalize("Side Story", "The Beach Episode")
	b := Normalize("Extra", "the beach episode!")
	// Differing types do not block the hash fallback.
	require.True(t, ShouldMerge(a, b, nil, nil))

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	near := base.Add(48 * time.Hour)
	far := base.Add(96 * time.Hour)
	require.True(t, ShouldMerge(a, b, &base, &near))
	require.False(t, ShouldMerge(a, b, &base, &far), "outside the 72h window")

	other := Normalize("Side Story", "A Different Story")
	require.False(t, ShouldMerge(a, other, nil, nil))
}
