package engine

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/MRamiBalles/PandemicSim/internal/domain/agent"
	"github.com/MRamiBalles/PandemicSim/internal/platform/config"
)

// ContactIndex narrows the susceptible agents a transmitter has to be
// checked against. Implementations may return extra candidates but never
// miss one within reach, and always return them in ascending collection
// order, so every index consumes the random source identically.
type ContactIndex interface {
	// Build indexes the susceptible collection for one tick.
	Build(susceptible []*agent.Agent)
	// Candidates appends to dst the collection indexes that may lie within
	// reach of p.
	Candidates(p agent.Vec2, reach float64, dst []int) []int
}

// NewContactIndex returns the index selected by the configuration.
func NewContactIndex(kind config.IndexKind) ContactIndex {
	if kind == config.IndexRTree {
		return NewRTreeIndex()
	}
	return &BruteForceIndex{}
}

// BruteForceIndex returns every susceptible agent: the O(I×S) pairwise scan.
type BruteForceIndex struct {
	n int
}

func (bi *BruteForceIndex) Build(susceptible []*agent.Agent) {
	bi.n = len(susceptible)
}

func (bi *BruteForceIndex) Candidates(_ agent.Vec2, _ float64, dst []int) []int {
	for i := 0; i < bi.n; i++ {
		dst = append(dst, i)
	}
	return dst
}

// R-tree node fan-out.
const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	pointTolerance   = 1e-6
)

type indexedAgent struct {
	idx int
	at  rtreego.Point
}

func (ia *indexedAgent) Bounds() rtreego.Rect {
	return ia.at.ToRect(pointTolerance)
}

// RTreeIndex bulk-loads the susceptible positions into an R-tree each tick
// and answers reach queries with a bounding-box search.
type RTreeIndex struct {
	tree *rtreego.Rtree
}

func NewRTreeIndex() *RTreeIndex {
	return &RTreeIndex{}
}

func (ri *RTreeIndex) Build(susceptible []*agent.Agent) {
	objs := make([]rtreego.Spatial, len(susceptible))
	for i, a := range susceptible {
		objs[i] = &indexedAgent{idx: i, at: rtreego.Point{a.Position.X, a.Position.Y}}
	}
	ri.tree = rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren, objs...)
}

func (ri *RTreeIndex) Candidates(p agent.Vec2, reach float64, dst []int) []int {
	if ri.tree == nil || ri.tree.Size() == 0 || reach <= 0 {
		return dst
	}
	box, err := rtreego.NewRect(rtreego.Point{p.X - reach, p.Y - reach}, []float64{2 * reach, 2 * reach})
	if err != nil {
		return dst
	}
	start := len(dst)
	for _, hit := range ri.tree.SearchIntersect(box) {
		dst = append(dst, hit.(*indexedAgent).idx)
	}
	sort.Ints(dst[start:])
	return dst
}
