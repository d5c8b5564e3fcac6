package task

import "sort"

// ReadyTasks returns the deterministically ordered keys eligible to
// run: Pending, with every dependency Succeeded or Cached. Ordering
// is bucketed by topological depth rather than sorted as pairs: every
// eligible node is dropped into its depth's bucket, buckets are walked
// shallowest first, and each bucket's keys are sorted — a depth tier
// is rarely more than a handful of tasks, so this mirrors how the
// caller actually thinks about readiness (wave by wave) rather than a
// single flat comparator over (depth, key).
func ReadyTasks(g *Graph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	buckets := make(map[int][]string)
	maxDepth := 0
	for _, n := range g.nodes {
		st, ok := state[n.task.Key]
		if !ok || st != Pending {
			continue
		}
		if !g.dependenciesSatisfied(n.canonicalIndex, state) {
			continue
		}
		d := g.depth[n.canonicalIndex]
		buckets[d] = append(buckets[d], n.task.Key)
		if d > maxDepth {
			maxDepth = d
		}
	}

	ready := make([]string, 0)
	for d := 0; d <= maxDepth; d++ {
		tier := buckets[d]
		if len(tier) == 0 {
			continue
		}
		sort.Strings(tier)
		ready = append(ready, tier...)
	}
	return ready
}

func (g *Graph) dependenciesSatisfied(idx int, state ExecutionState) bool {
	for _, parentIdx := range g.incoming[idx] {
		if !IsSuccessful(state[g.nodes[parentIdx].task.Key]) {
			return false
		}
	}
	return true
}
