package strategy

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/moodplay/internal/domain/track"
)

const chainMaxConcurrency = 4

// Chain runs a set of generators with bounded concurrency and
// collects every recommendation they produce (spec §4.9 "invoked by
// the orchestrator ... and may run concurrently within bounded
// pools"), generalizing the teacher's sequential provider-chain
// fan-out into a concurrent one.
type Chain struct {
	generators []Generator
}

// NewChain builds a Chain over generators, run in the given order but
// dispatched concurrently.
func NewChain(generators ...Generator) *Chain {
	return &Chain{generators: generators}
}

// Run executes every generator and returns the union of every
// recommendation produced. A generator that errors is logged and
// skipped, mirroring the teacher's "try every provider, maximize the
// candidate pool" philosophy; Run itself only errors if every
// generator failed or returned nothing.
func (c *Chain) Run(ctx context.Context, req Request) ([]track.Recommendation, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(chainMaxConcurrency)

	var mu sync.Mutex
	var out []track.Recommendation
	var succeeded int

	for _, gen := range c.generators {
		gen := gen
		group.Go(func() error {
			recs, err := gen.Generate(groupCtx, req)
			if err != nil {
				log.Warn().Err(err).Str("strategy", gen.Name()).Msg("candidate generator failed, continuing with the rest")
				return nil
			}
			if len(recs) == 0 {
				return nil
			}
			mu.Lock()
			out = append(out, recs...)
			succeeded++
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	if succeeded == 0 {
		return nil, errors.New("all candidate generators failed to return recommendations")
	}
	return out, nil
}
