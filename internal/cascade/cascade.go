// Package cascade implements the ranked-fallback pattern shared by
// source enrichment and training: try candidates best-first until one
// succeeds, labeling the rest along the way.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrExhausted reports that every candidate failed.
var ErrExhausted = errors.New("all candidates failed")

// Hooks receive state-label callbacks as the cascade advances. Each
// hook is optional; nil hooks are skipped. A hook error aborts the run
// immediately since it means state could not be persisted.
type Hooks[C any] struct {
	// OnAttempt fires before a candidate is tried
	OnAttempt func(c C) error

	// OnFailure fires after a failed attempt, with the cause
	OnFailure func(c C, attemptErr error) error

	// OnSuccess fires once for the winning candidate
	OnSuccess func(c C) error

	// OnRemaining fires for each untried candidate after a win
	OnRemaining func(c C) error
}

// Run tries candidates in order until attempt succeeds. A failed
// attempt moves on to the next candidate; a winning one stops the run
// and labels the untried rest via OnRemaining. When every candidate
// fails the returned error wraps ErrExhausted.
func Run[C, R any](ctx context.Context, candidates []C, attempt func(ctx context.Context, c C) (R, error), hooks Hooks[C]) (R, C, error) {
	var zeroR R
	var zeroC C

	var lastErr error
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zeroR, zeroC, err
		}

		if err := call(hooks.OnAttempt, candidate); err != nil {
			return zeroR, zeroC, err
		}

		result, err := attempt(ctx, candidate)
		if err != nil {
			lastErr = err
			if err := callFailure(hooks.OnFailure, candidate, err); err != nil {
				return zeroR, zeroC, err
			}
			continue
		}

		if err := call(hooks.OnSuccess, candidate); err != nil {
			return zeroR, zeroC, err
		}
		for _, rest := range candidates[i+1:] {
			if err := call(hooks.OnRemaining, rest); err != nil {
				return zeroR, zeroC, err
			}
		}
		return result, candidate, nil
	}

	if lastErr != nil {
		return zeroR, zeroC, fmt.Errorf("%w: last attempt: %v", ErrExhausted, lastErr)
	}
	return zeroR, zeroC, ErrExhausted
}

// Rank returns a copy of candidates sorted by key descending. Ties keep
// their original order so earlier discoveries win.
func Rank[C any](candidates []C, key func(C) int) []C {
	ranked := make([]C, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return key(ranked[i]) > key(ranked[j])
	})
	return ranked
}

func call[C any](hook func(C) error, c C) error {
	if hook == nil {
		return nil
	}
	return hook(c)
}

func callFailure[C any](hook func(C, error) error, c C, attemptErr error) error {
	if hook == nil {
		return nil
	}
	return hook(c, attemptErr)
}
