package sequencer

import (
	"context"
	"io"
	"sort"

	"github.com/blackcoderx/restseq/pkg/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunParallel executes disjoint dependency components concurrently, at most
// workers at a time. Each component runs strictly in order on its own
// transport from factory; all components share one value store. Steps are
// returned in the global order of strategy.
func (s *Sequencer) RunParallel(ctx context.Context, strategy Strategy, workers int, factory TransportFactory) ([]Step, error) {
	if factory == nil {
		return nil, ErrNoTransport
	}
	order, err := s.Order(strategy)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}

	steps := make([]Step, len(order))
	r := s.newRun()

	eg := &errgroup.Group{}
	eg.SetLimit(workers)

	for n, component := range s.graph.Components() {
		// Visit each component's members in the global order.
		members := make([]string, len(component))
		copy(members, component)
		sort.Slice(members, func(i, j int) bool {
			return position[members[i]] < position[members[j]]
		})

		eg.Go(func() error {
			log := s.logger.With(zap.Int("component", n))
			t, err := factory()
			if err != nil {
				terr := transport.Wrap("open", err)
				log.Warn("Transport unavailable", zap.Error(err))
				for _, id := range members {
					steps[position[id]] = Step{RequestID: id, Status: StatusFailed, Err: terr}
					r.markFailed(id, terr)
				}
				return nil
			}
			if c, ok := t.(io.Closer); ok {
				defer c.Close()
			}

			for _, id := range members {
				if ctx.Err() != nil {
					steps[position[id]] = Step{RequestID: id, Status: StatusSkipped, Err: ErrCancelled}
					continue
				}
				steps[position[id]] = r.execute(ctx, t, id)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return steps, nil
}
