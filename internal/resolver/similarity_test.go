package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimilarity_Identity(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, Similarity("Berserk", "Berserk"))
	require.Equal(t, 1.0, Similarity("One-Punch Man", "one punch man"), "punctuation and case insensitive")
	require.Equal(t, 1.0, Similarity("Café Terrace", "Cafe Terrace"), "unicode-normalized")
}

func TestSimilarity_Disjoint(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, Similarity("Berserk", "Yotsuba"))
	require.Equal(t, 0.0, Similarity("", "Berserk"))
	require.Equal(t, 0.0, Similarity("x", "y"))
}

func TestSimilarity_PartialOverlapIsOrdered(t *testing.T) {
	t.Parallel()

	close := Similarity("Frieren: Beyond Journey's End", "Frieren Beyond Journeys End")
	far := Similarity("Frieren: Beyond Journey's End", "Frieren")
	require.Equal(t, 1.0, close)
	require.Greater(t, far, 0.0)
	require.Less(t, far, close)
}

func TestTitleVariants(t *testing.T) {
	t.Parallel()

	variants := TitleVariants("The Witch Hat Atelier (Official) Manga Vol. 3")
	require.NotEmpty(t, variants)
	require.NotContains(t, variants, "The Witch Hat Atelier (Official) Manga Vol. 3")
	require.Contains(t, variants, "The Witch Hat Atelier Manga Vol. 3")
	require.Contains(t, variants, "Witch Hat Atelier")

	require.Empty(t, TitleVariants(""))
	require.Empty(t, TitleVariants("Berserk"), "nothing to strip yields no variants")
}
