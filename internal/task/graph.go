package task

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

type edgeIndex struct {
	from int
	to   int
}

// node is an immutable graph node: a Task plus its canonical position.
type node struct {
	task           Task
	canonicalIndex int
}

// Graph is an immutable, validated DAG of tasks. Safe for concurrent
// read access once constructed.
type Graph struct {
	byKey map[string]*node
	nodes []*node // canonical order

	edges []edgeIndex // sorted

	outgoing [][]int
	incoming [][]int
	indeg    []int
	depth    []int

	hash string
}

// NewGraph builds and validates a Graph. Rejects empty/duplicate
// keys, edges referencing unknown tasks, duplicate edges, self-loops,
// and any cycle.
func NewGraph(tasks []Task, edges []Edge) (*Graph, error) {
	if len(tasks) == 0 {
		return nil, invalidf("no tasks")
	}

	byKey := make(map[string]*node, len(tasks))
	nodes := make([]*node, 0, len(tasks))
	for _, t := range tasks {
		if t.Key == "" {
			return nil, invalidf("task key is required")
		}
		if _, exists := byKey[t.Key]; exists {
			return nil, invalidf("duplicate task key: %q", t.Key)
		}
		n := &node{task: t}
		byKey[t.Key] = n
		nodes = append(nodes, n)
	}

	// Canonicalize by (fingerprint, key) so graph identity doesn't depend
	// on caller insertion order.
	sort.Slice(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.task.Fingerprint != b.task.Fingerprint {
			return a.task.Fingerprint < b.task.Fingerprint
		}
		return a.task.Key < b.task.Key
	})
	for i, n := range nodes {
		n.canonicalIndex = i
	}

	keyToIndex := make(map[string]int, len(nodes))
	for _, n := range nodes {
		keyToIndex[n.task.Key] = n.canonicalIndex
	}

	mapped := make([]edgeIndex, 0, len(edges))
	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		fromIdx, okFrom := keyToIndex[e.From]
		toIdx, okTo := keyToIndex[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown task (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown task (to): %q", e.To)
		}
		if e.From == e.To {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}
		pair := edgeIndex{from: fromIdx, to: toIdx}
		if _, dup := seen[pair]; dup {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		mapped = append(mapped, pair)
	}
	sort.Slice(mapped, func(i, j int) bool {
		a, b := mapped[i], mapped[j]
		if a.from != b.from {
			return a.from < b.from
		}
		return a.to < b.to
	})

	outgoing := make([][]int, len(nodes))
	incoming := make([][]int, len(nodes))
	indeg := make([]int, len(nodes))
	for _, e := range mapped {
		outgoing[e.from] = append(outgoing[e.from], e.to)
		incoming[e.to] = append(incoming[e.to], e.from)
		indeg[e.to]++
	}
	for i := range outgoing {
		sort.Ints(outgoing[i])
	}
	for i := range incoming {
		sort.Ints(incoming[i])
	}

	g := &Graph{
		byKey:    byKey,
		nodes:    nodes,
		edges:    mapped,
		outgoing: outgoing,
		incoming: incoming,
		indeg:    indeg,
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	g.depth = g.computeDepth()
	g.hash = g.computeHash()
	return g, nil
}

// Hash returns the graph's stable content identity.
func (g *Graph) Hash() string { return g.hash }

// Keys returns every task key in canonical order.
func (g *Graph) Keys() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.task.Key
	}
	return out
}

// Depth returns a node's longest-path-from-any-root depth.
func (g *Graph) Depth(key string) (int, bool) {
	n, ok := g.byKey[key]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.topoOrderIndices() {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

// TopologicalOrder returns a deterministic topological ordering of
// task keys.
func (g *Graph) TopologicalOrder() []string {
	order := g.topoOrderIndices()
	keys := make([]string, len(order))
	for i, idx := range order {
		keys[i] = g.nodes[idx].task.Key
	}
	return keys
}

func (g *Graph) computeHash() string {
	h := sha256.New()
	writeField := func(data []byte) {
		length := uint64(len(data))
		lb := []byte{
			byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
			byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
		}
		h.Write(lb)
		h.Write(data)
	}

	writeField([]byte{byte(len(g.nodes))})
	for _, n := range g.nodes {
		writeField([]byte(n.task.Key))
		writeField([]byte(n.task.Fingerprint))
	}
	writeField([]byte{byte(len(g.edges))})
	for _, e := range g.edges {
		writeField([]byte{byte(e.from >> 24), byte(e.from >> 16), byte(e.from >> 8), byte(e.from)})
		writeField([]byte{byte(e.to >> 24), byte(e.to >> 16), byte(e.to >> 8), byte(e.to)})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// validateAcyclic runs the same elimination topoOrderIndices does and
// checks every node got emitted. A graph with a cycle always leaves at
// least one node permanently blocked (its indegree never reaches
// zero), so a short count compares the two.
func (g *Graph) validateAcyclic() error {
	order := g.topoOrderIndices()
	if len(order) == len(g.nodes) {
		return nil
	}
	stuck := make([]bool, len(g.nodes))
	for i := range stuck {
		stuck[i] = true
	}
	for _, idx := range order {
		stuck[idx] = false
	}
	return cycleError(g.witnessCycle(stuck))
}

// topoOrderIndices returns a deterministic topological ordering of
// node indices using repeated elimination: on each pass, every
// zero-indegree node not yet emitted is peeled off in ascending
// canonical-index order, then their outgoing edges are retired before
// the next pass. Canonical indices are already the tie-break order the
// graph's identity hash depends on, so no separate priority structure
// is needed to keep a pass deterministic.
func (g *Graph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)
	done := make([]bool, len(indeg))

	out := make([]int, 0, len(indeg))
	for {
		progressed := false
		for i := range indeg {
			if done[i] || indeg[i] != 0 {
				continue
			}
			done[i] = true
			out = append(out, i)
			progressed = true
			for _, m := range g.outgoing[i] {
				indeg[m]--
			}
		}
		if !progressed {
			return out
		}
	}
}

// witnessCycle extracts one cycle among the nodes that topoOrderIndices
// could never fully retire (stuck[i] true). Starting from the
// lowest-indexed stuck node, it walks backwards along incoming edges —
// always to the lowest-indexed stuck predecessor — until a node
// repeats; every stuck node has at least one stuck predecessor, since
// otherwise its indegree among stuck nodes would have reached zero and
// it would have been emitted. The repeated node closes the cycle.
func (g *Graph) witnessCycle(stuck []bool) []string {
	start := -1
	for i, s := range stuck {
		if s {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	posInPath := map[int]int{start: 0}
	path := []int{start}
	cur := start
	for {
		prev := -1
		for _, p := range g.incoming[cur] { // already ascending
			if stuck[p] {
				prev = p
				break
			}
		}
		if prev == -1 {
			return nil
		}
		if at, seen := posInPath[prev]; seen {
			loop := append([]int{}, path[at:]...)
			loop = append(loop, prev)
			// loop was assembled walking backwards along edges, so
			// reverse it to report the cycle in forward edge order.
			out := make([]string, len(loop))
			for i, idx := range loop {
				out[len(loop)-1-i] = g.nodes[idx].task.Key
			}
			return out
		}
		posInPath[prev] = len(path)
		path = append(path, prev)
		cur = prev
	}
}
