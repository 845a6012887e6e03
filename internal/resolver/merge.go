package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/catalog"
	"github.com/calyptra/serialhub/internal/metrics"
)

// mergeDuplicate folds a pre-existing peer entry into the entry being
// enriched when both converge on one series. Progress merges by maximum
// onto the winner. The loser is deleted only when that cannot destroy
// information: a loser holding strictly higher progress or a manual-link
// flag is parked in unavailable instead.
func (r *Resolver) mergeDuplicate(ctx context.Context, tx catalog.ResolutionTx, winner, loser catalog.LibraryEntry) error {
	merged := winner.Progress
	if loser.Progress > merged {
		merged = loser.Progress
	}
	if merged > winner.Progress {
		if err := tx.SetProgress(ctx, winner.ID, merged); err != nil {
			return fmt.Errorf("merge progress: %w", err)
		}
	}

	// The refusal compares against the winner's pre-merge progress: a loser
	// that was strictly ahead is never deleted, even though its progress was
	// just copied onto the winner.
	if loser.ManuallyLinked || loser.Progress > winner.Progress {
		next := r.clock.Now().Add(RecoveryDelay(loser.MetadataRetryCount + 1))
		if err := tx.MarkEntryUnavailable(ctx, loser.ID, next); err != nil {
			return fmt.Errorf("park merge loser: %w", err)
		}
		metrics.ObserveResolution("merge_refused")
		r.logger.Warn("duplicate merge delete refused, loser parked",
			zap.String("winner_id", winner.ID),
			zap.String("loser_id", loser.ID),
			zap.Bool("manually_linked", loser.ManuallyLinked),
		)
		return nil
	}

	if err := tx.DeleteEntry(ctx, loser.ID); err != nil {
		return fmt.Errorf("delete merge loser: %w", err)
	}
	metrics.ObserveResolution("merged")
	r.logger.Info("duplicate entries merged",
		zap.String("winner_id", winner.ID),
		zap.String("loser_id", loser.ID),
		zap.Float64("progress", merged),
	)
	return nil
}
