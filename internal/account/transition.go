package account

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guildecon/economy-api/internal/types"
)

// DefaultAttempts is the retry bound for optimistic transitions. Small on
// purpose: exhausting it means sustained contention on one account, which
// callers surface as a conflict rather than hanging.
const DefaultAttempts = 4

// Transition runs the optimistic read-compute-commit loop on one account
// document:
//
//  1. Load the account and decode its snapshot.
//  2. Run compute on a copy. A compute error is a domain failure and
//     returns immediately; no write is attempted.
//  3. Conditionally write the computed state, matching on the previously
//     read document bytes. On a compare-and-swap miss, reload and retry.
//
// Exhausting attempts returns types.ErrConflict, which callers wrap in a
// flow-specific conflict error. Two concurrent callers never both succeed
// against the same stale read; one of them always retries on fresh state.
func (s *Store) Transition(ctx context.Context, userID, guildID string, attempts int, compute func(*types.Snapshot) error) (*types.Snapshot, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	logger := log.With().
		Str("user_id", userID).
		Str("guild_id", guildID).
		Str("component", "account").
		Logger()

	for attempt := 1; attempt <= attempts; attempt++ {
		acc, err := s.GetOrCreate(ctx, userID, guildID)
		if err != nil {
			return nil, err
		}
		snap, err := types.DecodeSnapshot(acc)
		if err != nil {
			return nil, fmt.Errorf("decode account document: %w", err)
		}

		next := snap.Clone()
		if err := compute(next); err != nil {
			return nil, err
		}

		ok, err := s.commit(ctx, acc, next)
		if err != nil {
			return nil, err
		}
		if ok {
			if attempt > 1 {
				logger.Debug().Int("attempt", attempt).Msg("transition committed after retry")
			}
			return next, nil
		}

		logger.Debug().Int("attempt", attempt).Msg("transition lost write race, retrying")
	}

	logger.Warn().Int("attempts", attempts).Msg("transition retries exhausted")
	return nil, fmt.Errorf("account %s/%s after %d attempts: %w", guildID, userID, attempts, types.ErrConflict)
}
