package task

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Result is the deterministic summary of one graph execution attempt.
type Result struct {
	GraphHash      string
	FinalState     ExecutionState
	ExecutionOrder []string
	ExitCode       map[string]int
}

// Executor runs a Graph's tasks, respecting dependency order and the
// engine's default sequential-for-determinism policy; parallel
// execution is opt-in via RunParallel. Cancellation is the caller's
// job — ctx cancellation surfaces through each Task's own Execute, the
// same way the pipeline runner's subprocess termination is external to
// this package.
type Executor struct {
	Graph *Graph
	Log   *zap.Logger

	mu    sync.Mutex
	state ExecutionState
}

func NewExecutor(g *Graph, log *zap.Logger) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if log == nil {
		log = zap.NewNop()
	}
	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.task.Key] = Pending
	}
	return &Executor{Graph: g, Log: log, state: state}, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// RunSerial executes the graph one ready task at a time, the default
// policy named in spec.md §4.9 ("the default is sequential for
// determinism").
func (e *Executor) RunSerial(ctx context.Context) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	order := make([]string, 0, len(e.Graph.nodes))
	exitCodes := make(map[string]int, len(e.Graph.nodes))

	for {
		e.mu.Lock()
		ready := ReadyTasks(e.Graph, e.state)
		if len(ready) == 0 {
			allTerminal := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
			e.mu.Unlock()
			if allTerminal {
				return &Result{
					GraphHash:      e.Graph.Hash(),
					FinalState:     e.StateSnapshot(),
					ExecutionOrder: order,
					ExitCode:       exitCodes,
				}, nil
			}
			return nil, fmt.Errorf("no ready tasks but graph not finished")
		}

		next := ready[0]
		n := e.Graph.byKey[next]
		if err := Transition(e.state, next, Pending, Running); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()

		e.Log.Debug("task started", zap.String("key", next))
		outcome, err := n.task.Execute(ctx)
		if err != nil {
			return nil, fmt.Errorf("executing %q: %w", next, err)
		}
		if outcome == nil {
			return nil, fmt.Errorf("executing %q: nil outcome", next)
		}

		e.mu.Lock()
		order = append(order, next)
		exitCodes[next] = outcome.ExitCode

		if outcome.ExitCode == 0 {
			to := Succeeded
			if outcome.FromCache {
				to = Cached
			}
			if err := Transition(e.state, next, Running, to); err != nil {
				e.mu.Unlock()
				return nil, err
			}
			e.mu.Unlock()
			e.Log.Debug("task finished", zap.String("key", next), zap.String("state", string(to)))
			continue
		}

		if err := FailAndPropagate(e.Graph, e.state, next); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.mu.Unlock()
		e.Log.Debug("task failed, downstream skipped", zap.String("key", next), zap.Int("exit_code", outcome.ExitCode))
	}
}

// RunParallel executes independent subgraphs concurrently, up to
// concurrency workers, dispatching in increasing topological depth
// (lexical order by key within a depth) so results remain
// reproducible regardless of goroutine scheduling.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}

	maxDepth := 0
	for _, d := range e.Graph.depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	byDepth := make([][]string, maxDepth+1)
	for _, n := range e.Graph.nodes {
		byDepth[e.Graph.depth[n.canonicalIndex]] = append(byDepth[e.Graph.depth[n.canonicalIndex]], n.task.Key)
	}
	for d := range byDepth {
		sort.Strings(byDepth[d])
	}

	type workItem struct {
		key  string
		exec func(ctx context.Context) (*Outcome, error)
	}
	type workResult struct {
		key     string
		outcome *Outcome
		err     error
	}

	workCh := make(chan workItem, concurrency)
	doneCh := make(chan workResult, concurrency)

	var wg sync.WaitGroup
	var stopOnce sync.Once
	stopWorkers := func() {
		stopOnce.Do(func() {
			close(workCh)
			wg.Wait()
		})
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				outcome, err := w.exec(ctx)
				doneCh <- workResult{key: w.key, outcome: outcome, err: err}
			}
		}()
	}

	order := make([]string, 0, len(e.Graph.nodes))
	exitCodes := make(map[string]int, len(e.Graph.nodes))
	inFlight := 0

	depsSatisfied := func(idx int) bool {
		for _, p := range e.Graph.incoming[idx] {
			if !IsSuccessful(e.state[e.Graph.nodes[p].task.Key]) {
				return false
			}
		}
		return true
	}

	for depth := 0; depth <= maxDepth; depth++ {
		keys := byDepth[depth]
		nextToStart := 0

		for {
			e.mu.Lock()
			for inFlight < concurrency && nextToStart < len(keys) {
				key := keys[nextToStart]
				n := e.Graph.byKey[key]
				st := e.state[key]

				if IsTerminal(st) {
					nextToStart++
					continue
				}
				if st != Pending {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("unexpected non-pending state for %q: %s", key, st)
				}
				if !depsSatisfied(n.canonicalIndex) {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("task %q at depth %d is pending but dependencies are not successful", key, depth)
				}

				if err := Transition(e.state, key, Pending, Running); err != nil {
					e.mu.Unlock()
					stopWorkers()
					return nil, err
				}
				order = append(order, key)
				inFlight++
				nextToStart++
				workCh <- workItem{key: key, exec: n.task.Execute}
			}
			stageDone := nextToStart >= len(keys) && inFlight == 0
			e.mu.Unlock()
			if stageDone {
				break
			}

			select {
			case <-ctx.Done():
				stopWorkers()
				return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
			case r := <-doneCh:
				if r.err != nil {
					stopWorkers()
					return nil, fmt.Errorf("executing %q: %w", r.key, r.err)
				}
				if r.outcome == nil {
					stopWorkers()
					return nil, fmt.Errorf("executing %q: nil outcome", r.key)
				}

				e.mu.Lock()
				if cur := e.state[r.key]; cur != Running {
					e.mu.Unlock()
					stopWorkers()
					return nil, fmt.Errorf("completion for %q but state is %s", r.key, cur)
				}
				exitCodes[r.key] = r.outcome.ExitCode

				if r.outcome.ExitCode == 0 {
					to := Succeeded
					if r.outcome.FromCache {
						to = Cached
					}
					if err := Transition(e.state, r.key, Running, to); err != nil {
						e.mu.Unlock()
						stopWorkers()
						return nil, err
					}
				} else if err := FailAndPropagate(e.Graph, e.state, r.key); err != nil {
					e.mu.Unlock()
					stopWorkers()
					return nil, err
				}
				inFlight--
				e.mu.Unlock()
			}
		}
	}

	stopWorkers()
	return &Result{
		GraphHash:      e.Graph.Hash(),
		FinalState:     e.StateSnapshot(),
		ExecutionOrder: order,
		ExitCode:       exitCodes,
	}, nil
}
