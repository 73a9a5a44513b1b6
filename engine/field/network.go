package field

import (
	"math/rand/v2"

	"github.com/goab-dev/goab/internal/sliceutil"
	"github.com/goab-dev/goab/util/dbmap"
)

// Edge connects two nodes of a Network, optionally carrying a label and a
// weight. For undirected networks the edge is materialized in both adjacency
// lists, with U always the list owner.
type Edge[O comparable, L comparable] struct {
	U, V O

	Label    L
	Labeled  bool
	Weight   float64
	Weighted bool
}

// EdgeOptions selects the kind of edge to create: simple, labeled, weighted
// or both.
type EdgeOptions[L comparable] struct {
	label    L
	labeled  bool
	weight   float64
	weighted bool
}

// Simple returns options for an edge with no label and no weight.
func Simple[L comparable]() EdgeOptions[L] {
	return EdgeOptions[L]{}
}

// Labeled returns options for an edge carrying a label.
func Labeled[L comparable](l L) EdgeOptions[L] {
	return EdgeOptions[L]{label: l, labeled: true}
}

// Weighted returns options for an edge carrying a weight.
func Weighted[L comparable](w float64) EdgeOptions[L] {
	return EdgeOptions[L]{weight: w, weighted: true}
}

// WeightedLabeled returns options for an edge carrying both a label and a
// weight.
func WeightedLabeled[L comparable](l L, w float64) EdgeOptions[L] {
	return EdgeOptions[L]{label: l, labeled: true, weight: w, weighted: true}
}

func newEdge[O comparable, L comparable](u, v O, opt EdgeOptions[L]) Edge[O, L] {
	return Edge[O, L]{
		U: u, V: v,
		Label: opt.label, Labeled: opt.labeled,
		Weight: opt.weight, Weighted: opt.weighted,
	}
}

// matches reports whether the edge connects u and v under the network's
// directionality.
func (e Edge[O, L]) matches(u, v O, directed bool) bool {
	if e.U == u && e.V == v {
		return true
	}
	return !directed && e.U == v && e.V == u
}

// Network is a double-buffered graph of agent-keyed edges, directed or
// undirected. Mutations stage on the write view and are published by Update,
// like every other field.
type Network[O comparable, L comparable] struct {
	edges    *dbmap.Map[O, []Edge[O, L]]
	directed bool

	r *rand.Rand
}

// NewNetwork creates an empty network. Pass directed as false to have every
// edge materialized in both adjacency lists.
func NewNetwork[O comparable, L comparable](directed bool) *Network[O, L] {
	return &Network[O, L]{
		edges:    dbmap.New[O, []Edge[O, L]](),
		directed: directed,
		r:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Directed reports whether the network is directed.
func (n *Network[O, L]) Directed() bool { return n.directed }

// AddNode stages a node with an empty adjacency list. Adding an existing
// node keeps its staged edges.
func (n *Network[O, L]) AddNode(u O) {
	n.edges.Upsert(u, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
		return cur
	})
}

// AddEdge stages an edge from u to v, inserting either node if absent. On an
// undirected network the mirrored edge is staged under v as well.
func (n *Network[O, L]) AddEdge(u, v O, opt EdgeOptions[L]) Edge[O, L] {
	e := newEdge(u, v, opt)
	n.edges.Upsert(u, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
		return append(cur, e)
	})
	if !n.directed {
		mirror := newEdge(v, u, opt)
		n.edges.Upsert(v, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
			return append(cur, mirror)
		})
	}
	return e
}

// UpdateEdge replaces the edge identified by the pair {u,v} (the ordered pair
// on a directed network) with a new edge built from opt. It reports whether
// an adjacency list for u existed to update.
func (n *Network[O, L]) UpdateEdge(u, v O, opt EdgeOptions[L]) (Edge[O, L], bool) {
	if _, ok := n.edges.GetStaged(u); !ok {
		var zero Edge[O, L]
		return zero, false
	}
	e := newEdge(u, v, opt)
	n.replaceEdge(u, u, v, e)
	if !n.directed {
		n.replaceEdge(v, u, v, newEdge(v, u, opt))
	}
	return e, true
}

func (n *Network[O, L]) replaceEdge(owner, u, v O, e Edge[O, L]) {
	n.edges.Upsert(owner, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
		cur = sliceutil.Filter(cur, func(entry Edge[O, L]) bool {
			return !entry.matches(u, v, n.directed)
		})
		return append(cur, e)
	})
}

// GetNodes returns the nodes of the published view.
func (n *Network[O, L]) GetNodes() []O {
	return n.edges.Keys()
}

// GetEdges returns the published adjacency list of u.
func (n *Network[O, L]) GetEdges(u O) ([]Edge[O, L], bool) {
	return n.edges.Get(u)
}

// GetEdge returns the published edge connecting u and v, honouring edge
// direction on directed networks.
func (n *Network[O, L]) GetEdge(u, v O) (Edge[O, L], bool) {
	edges, ok := n.edges.Get(u)
	if !ok {
		var zero Edge[O, L]
		return zero, false
	}
	for _, e := range edges {
		if e.matches(u, v, n.directed) {
			return e, true
		}
	}
	var zero Edge[O, L]
	return zero, false
}

// RemoveEdge stages the removal of the edge between u and v from both
// adjacency lists and returns the edge removed from u's list.
func (n *Network[O, L]) RemoveEdge(u, v O) (Edge[O, L], bool) {
	var (
		removed Edge[O, L]
		found   bool
	)
	n.edges.Upsert(u, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
		for i, e := range cur {
			if e.matches(u, v, n.directed) {
				removed, found = e, true
				return append(cur[:i:i], cur[i+1:]...)
			}
		}
		return cur
	})
	if !found {
		var zero Edge[O, L]
		return zero, false
	}
	if !n.directed {
		n.edges.Upsert(v, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
			return sliceutil.Filter(cur, func(e Edge[O, L]) bool {
				return !e.matches(u, v, n.directed)
			})
		})
	}
	return removed, true
}

// RemoveEdges stages the removal of every edge incident to u, leaving the
// node itself in place, and returns the edges removed from u's own list.
func (n *Network[O, L]) RemoveEdges(u O) []Edge[O, L] {
	var removed []Edge[O, L]
	n.edges.Upsert(u, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
		removed = cur
		return nil
	})
	for _, v := range n.nodeSet() {
		if v == u {
			continue
		}
		n.edges.Upsert(v, func(cur []Edge[O, L], ok bool) []Edge[O, L] {
			return sliceutil.Filter(cur, func(e Edge[O, L]) bool {
				return !e.matches(v, u, n.directed) && !e.matches(u, v, n.directed)
			})
		})
	}
	return removed
}

// RemoveNode stages the removal of u and of every edge incident to it.
func (n *Network[O, L]) RemoveNode(u O) bool {
	if _, ok := n.edges.GetStaged(u); !ok {
		return false
	}
	n.RemoveEdges(u)
	n.edges.Remove(u)
	return true
}

// RemoveAllEdges stages the removal of the entire graph, nodes included, as
// the original remove-all semantics of the engine this field derives from.
func (n *Network[O, L]) RemoveAllEdges() {
	for _, u := range n.nodeSet() {
		n.edges.Remove(u)
	}
}

// nodeSet returns staged and published nodes, deduplicated.
func (n *Network[O, L]) nodeSet() []O {
	staged := n.edges.WKeys()
	seen := make(map[O]struct{}, len(staged))
	nodes := make([]O, 0, len(staged))
	for _, u := range staged {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		nodes = append(nodes, u)
	}
	for _, u := range n.edges.Keys() {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		nodes = append(nodes, u)
	}
	return nodes
}

func (n *Network[O, L]) degree(u O) int {
	edges, _ := n.edges.GetStaged(u)
	return len(edges)
}

// AddProbEdge stages up to nSample simple edges from u to distinct existing
// nodes chosen by preferential attachment: each candidate is sampled without
// replacement with probability proportional to its current degree. Nodes
// with degree zero are only reachable once every candidate weight is zero,
// in which case sampling degrades to uniform.
func (n *Network[O, L]) AddProbEdge(u O, nSample int) {
	type candidate struct {
		node   O
		weight int64
	}
	var (
		cands []candidate
		total int64
	)
	for _, v := range n.nodeSet() {
		if v == u {
			continue
		}
		w := int64(n.degree(v))
		cands = append(cands, candidate{node: v, weight: w})
		total += w
	}

	amount := nSample
	if len(cands) < amount {
		amount = len(cands)
	}
	for picked := 0; picked < amount; picked++ {
		var idx int
		if total > 0 {
			t := n.r.Int64N(total)
			for i, c := range cands {
				t -= c.weight
				if t < 0 {
					idx = i
					break
				}
			}
		} else {
			idx = n.r.IntN(len(cands))
		}
		chosen := cands[idx]
		n.AddEdge(u, chosen.node, Simple[L]())
		total -= chosen.weight
		cands = append(cands[:idx:idx], cands[idx+1:]...)
	}
}

// Update publishes all staged graph mutations.
func (n *Network[O, L]) Update() {
	n.edges.Update()
}

// LazyUpdate publishes staged graph mutations only where present.
func (n *Network[O, L]) LazyUpdate() {
	n.edges.LazyUpdate()
}

// Reset empties the network entirely.
func (n *Network[O, L]) Reset() {
	n.edges.Reset()
}

// PreferentialAttachmentBA builds an undirected Barabási–Albert network over
// the nodes passed: the first two nodes are connected directly, then each
// further node attaches to up to initEdges existing nodes by preferential
// attachment. The network is published between insertions so that sampling
// observes current degrees.
func PreferentialAttachmentBA[O comparable, L comparable](n *Network[O, L], nodes []O, initEdges int) {
	if initEdges < 1 {
		initEdges = 1
	}
	n.RemoveAllEdges()
	n.Update()

	if len(nodes) == 0 {
		return
	}
	n.AddNode(nodes[0])
	n.Update()
	if len(nodes) == 1 {
		return
	}
	n.AddNode(nodes[1])
	n.AddEdge(nodes[0], nodes[1], Simple[L]())
	n.Update()

	for i := 2; i < len(nodes); i++ {
		n.AddProbEdge(nodes[i], initEdges)
		n.Update()
	}
}
