package planner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfroyo/capplan/pkg/constraints"
	"github.com/openfroyo/capplan/pkg/engine"
	"github.com/openfroyo/capplan/pkg/smt"
	"github.com/openfroyo/capplan/pkg/solver"
	"github.com/openfroyo/capplan/pkg/telemetry"
)

// attempt is one solved horizon.
type attempt struct {
	happenings int
	cctx       *constraints.Context
	problem    *smt.Problem
	outcome    *solver.Outcome
	record     Attempt
}

func (a *attempt) sat() bool {
	return a.outcome.Status == solver.StatusSat
}

type searchOutcome struct {
	// winner is the smallest satisfiable horizon, nil when exhausted.
	winner *attempt
	// last is the largest horizon tried when exhausted.
	last     *attempt
	attempts []Attempt
}

// solve builds and checks the problem for one horizon. Registries and the
// problem are private to the call.
func (p *Planner) solve(ctx context.Context, r *run, h int) (*attempt, error) {
	ctx, span := p.tel.Tracer.StartHorizonSpan(ctx, h)
	defer span.End()
	logger := r.logger.WithHorizon(h)
	start := time.Now()

	cctx, err := constraints.NewContext(r.facts, r.session, r.forest, h)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	metrics := p.tel.Metrics
	problem, err := constraints.Assemble(cctx, p.generators, func(generator string, count int) {
		metrics.RecordAssertions(generator, count)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	assertions := len(problem.Assertions())
	sctx, sspan := p.tel.Tracer.StartSolverSpan(ctx, p.solver.Name(), assertions)
	out, err := p.solver.Check(sctx, problem, solver.Options{
		Minimize: r.minimize,
		Timeout:  p.opts.Timeout,
	})
	if err != nil {
		telemetry.RecordError(sspan, err)
		sspan.End()
		metrics.RecordSolverCall(p.solver.Name(), "error", time.Since(start))
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.RecordSuccess(sspan)
	sspan.End()
	metrics.RecordSolverCall(out.Backend, string(out.Status), out.Duration)

	if out.Status == solver.StatusUnknown {
		err := engine.NewTransientError(fmt.Sprintf("solver returned unknown at %d happenings", h), nil).
			WithCode(engine.ErrCodeSolverFailed).
			WithResource(out.Backend)
		telemetry.RecordError(span, err)
		return nil, err
	}

	a := &attempt{
		happenings: h,
		cctx:       cctx,
		problem:    problem,
		outcome:    out,
		record: Attempt{
			Happenings: h,
			Outcome:    string(out.Status),
			Assertions: assertions,
			Backend:    out.Backend,
			Duration:   time.Since(start),
		},
	}
	metrics.RecordHorizonAttempt(a.record.Outcome)
	_ = p.tel.Events.PublishHorizonAttempted(r.id, h, a.record.Outcome, a.record.Duration)
	zl := logger.Zerolog()
	zl.Debug().
		Str("outcome", a.record.Outcome).
		Int("assertions", assertions).
		Dur("duration", a.record.Duration).
		Msg("Horizon attempted")
	telemetry.RecordSuccess(span)
	return a, nil
}

// searchSequential tries horizons 1..maxH in order and stops at the first
// satisfiable one.
func (p *Planner) searchSequential(ctx context.Context, r *run) (*searchOutcome, error) {
	out := &searchOutcome{}
	for h := 1; h <= r.maxH; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := p.solve(ctx, r, h)
		if err != nil {
			return nil, err
		}
		out.attempts = append(out.attempts, a.record)
		if a.sat() {
			out.winner = a
			return out, nil
		}
		out.last = a
	}
	return out, nil
}

type report struct {
	happenings int
	attempt    *attempt
	err        error
}

// searchParallel solves horizons on a bounded worker pool. Horizons are
// queued in increasing order. A satisfiable horizon cancels every larger
// one, queued or running, while smaller ones run to completion; the
// smallest satisfiable horizon wins, as in the sequential search.
func (p *Planner) searchParallel(ctx context.Context, r *run) (*searchOutcome, error) {
	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	workerCount := r.workers
	if r.maxH < workerCount {
		workerCount = r.maxH
	}

	workQueue := make(chan int, r.maxH)
	for h := 1; h <= r.maxH; h++ {
		workQueue <- h
	}
	close(workQueue)

	var (
		mu      sync.Mutex
		best    = r.maxH + 1
		running = make(map[int]context.CancelFunc)
	)
	// claim registers h as running unless a smaller horizon already won.
	claim := func(h int) (context.Context, bool) {
		mu.Lock()
		defer mu.Unlock()
		if h > best {
			return nil, false
		}
		hctx, cancel := context.WithCancel(ctx)
		running[h] = cancel
		return hctx, true
	}
	release := func(h int, won bool) {
		mu.Lock()
		defer mu.Unlock()
		if cancel, ok := running[h]; ok {
			cancel()
			delete(running, h)
		}
		if !won || h >= best {
			return
		}
		best = h
		for other, cancel := range running {
			if other > h {
				cancel()
			}
		}
	}

	var wg sync.WaitGroup
	reports := make(chan report, r.maxH)

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for h := range workQueue {
				hctx, ok := claim(h)
				if !ok {
					reports <- report{happenings: h, err: context.Canceled}
					continue
				}
				a, err := p.solve(hctx, r, h)
				release(h, err == nil && a.sat())
				reports <- report{happenings: h, attempt: a, err: err}

				select {
				case <-ctx.Done():
					return
				default:
				}
			}
		}()
	}

	wg.Wait()
	close(reports)

	byHorizon := make(map[int]report, r.maxH)
	for rep := range reports {
		byHorizon[rep.happenings] = rep
	}

	// Parent cancellation wins over anything the workers reported.
	if err := ctx.Err(); err != nil && best > r.maxH {
		return nil, err
	}

	out := &searchOutcome{}
	for h := 1; h <= r.maxH; h++ {
		rep, ok := byHorizon[h]
		if !ok {
			// A worker stopped early because the request was cancelled.
			return nil, context.Canceled
		}
		if rep.err != nil {
			return nil, rep.err
		}
		out.attempts = append(out.attempts, rep.attempt.record)
		if rep.attempt.sat() {
			out.winner = rep.attempt
			break
		}
		out.last = rep.attempt
	}

	zl := r.logger.Zerolog()
	zl.Debug().
		Int("workers", workerCount).
		Int("solved", len(out.attempts)).
		Msg("Parallel horizon search finished")
	return out, nil
}
