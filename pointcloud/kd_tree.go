package pointcloud

import (
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// ErrIndexNotBuilt is returned when a KDTree is queried before being built.
var ErrIndexNotBuilt = errors.New("KD tree has not been built")

// treePoint is a position in the index along with its offset in the snapshot
// the index was built from.
type treePoint struct {
	pos   r3.Vector
	index int
}

// Compare returns the signed distance of p from the plane passing through c
// and perpendicular to the dimension d.
func (p treePoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(treePoint)
	switch d {
	case 0:
		return p.pos.X - q.pos.X
	case 1:
		return p.pos.Y - q.pos.Y
	default:
		return p.pos.Z - q.pos.Z
	}
}

// Dims returns the number of dimensions described by the point.
func (p treePoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between the points, the
// convention the kdtree package and this index operate in.
func (p treePoint) Distance(c kdtree.Comparable) float64 {
	q := c.(treePoint)
	v := p.pos.Sub(q.pos)
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// treePoints implements kdtree.Interface.
type treePoints []treePoint

func (ps treePoints) Index(i int) kdtree.Comparable { return ps[i] }
func (ps treePoints) Len() int                      { return len(ps) }
func (ps treePoints) Pivot(d kdtree.Dim) int {
	return treePlane{treePoints: ps, Dim: d}.Pivot()
}

func (ps treePoints) Slice(start, end int) kdtree.Interface { return ps[start:end] }

// treePlane sorts treePoints along a single dimension.
type treePlane struct {
	kdtree.Dim
	treePoints
}

func (p treePlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.treePoints[i].pos.X < p.treePoints[j].pos.X
	case 1:
		return p.treePoints[i].pos.Y < p.treePoints[j].pos.Y
	default:
		return p.treePoints[i].pos.Z < p.treePoints[j].pos.Z
	}
}

func (p treePlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p treePlane) Slice(start, end int) kdtree.SortSlicer {
	p.treePoints = p.treePoints[start:end]
	return p
}

func (p treePlane) Swap(i, j int) {
	p.treePoints[i], p.treePoints[j] = p.treePoints[j], p.treePoints[i]
}

// Neighbor is a match returned by an index query.
type Neighbor struct {
	// Index is the offset of the match in the snapshot the index was
	// built from (see KDTree.Points).
	Index int
	// Point is the matched position.
	Point r3.Vector
	// SquaredDistance is the squared Euclidean distance to the query.
	SquaredDistance float64
}

// KDTree is a static nearest-neighbor index over a snapshot of a point
// cloud. It owns a copy of the positions it was built from; mutating the
// originating cloud afterwards does not affect the index, and a mutated
// cloud must be re-indexed with ToKDTree before further queries reflect it.
// A built tree is read-only and safe for concurrent queries.
type KDTree struct {
	tree    *kdtree.Tree
	points  []r3.Vector
	data    []Data
	normals []r3.Vector
	meta    MetaData
	scratch sync.Pool
}

// ToKDTree takes a snapshot of a point cloud and builds a KDTree from it.
func ToKDTree(cloud PointCloud) (*KDTree, error) {
	if cloud == nil || cloud.Size() == 0 {
		return nil, errors.New("cannot build a KD tree from an empty point cloud")
	}
	size := cloud.Size()
	t := &KDTree{
		points: make([]r3.Vector, 0, size),
		data:   make([]Data, 0, size),
		meta:   cloud.MetaData(),
	}
	ps := make(treePoints, 0, size)
	cloud.Iterate(0, 0, func(p r3.Vector, d Data) bool {
		ps = append(ps, treePoint{pos: p, index: len(t.points)})
		t.points = append(t.points, p)
		t.data = append(t.data, d)
		return true
	})
	if t.meta.HasNormal {
		t.normals = make([]r3.Vector, len(t.data))
		for i, d := range t.data {
			if d != nil && d.HasNormal() {
				t.normals[i] = d.Normal()
			}
		}
	}
	t.tree = kdtree.New(ps, false)
	return t, nil
}

// Size returns the number of indexed points.
func (t *KDTree) Size() int {
	return len(t.points)
}

// MetaData returns the meta data of the snapshot the index was built from.
func (t *KDTree) MetaData() MetaData {
	return t.meta
}

// Points returns the position snapshot the index was built from, in index
// order. The returned slice is owned by the tree and must not be modified.
func (t *KDTree) Points() []r3.Vector {
	return t.points
}

// Normals returns the per-point surface normals in index order, or nil when
// the snapshot carries none. The returned slice is owned by the tree and
// must not be modified.
func (t *KDTree) Normals() []r3.Vector {
	return t.normals
}

// DataAt returns the data stored with the point at the given index.
func (t *KDTree) DataAt(i int) Data {
	return t.data[i]
}

// kdScratch holds per-query buffers so that heavily repeated searches do not
// allocate. Instances are pooled on the tree and never shared between
// concurrent queries.
type kdScratch struct {
	nk *kdtree.NKeeper
	dk *kdtree.DistKeeper

	visited    map[int]bool
	visitOrder []int
	frontier   []r3.Vector
	next       []r3.Vector
}

func (s *kdScratch) nKeeper(k int) *kdtree.NKeeper {
	if s.nk == nil || cap(s.nk.Heap) != k {
		s.nk = kdtree.NewNKeeper(k)
		return s.nk
	}
	s.nk.Heap = s.nk.Heap[:1]
	s.nk.Heap[0] = kdtree.ComparableDist{Comparable: nil, Dist: math.Inf(1)}
	return s.nk
}

func (s *kdScratch) distKeeper(squaredRadius float64) *kdtree.DistKeeper {
	if s.dk == nil {
		s.dk = kdtree.NewDistKeeper(squaredRadius)
		return s.dk
	}
	s.dk.Heap = s.dk.Heap[:1]
	s.dk.Heap[0] = kdtree.ComparableDist{Comparable: nil, Dist: squaredRadius}
	return s.dk
}

func (t *KDTree) getScratch() *kdScratch {
	if s, ok := t.scratch.Get().(*kdScratch); ok && s != nil {
		return s
	}
	return &kdScratch{visited: make(map[int]bool)}
}

func (t *KDTree) putScratch(s *kdScratch) {
	for k := range s.visited {
		delete(s.visited, k)
	}
	s.visitOrder = s.visitOrder[:0]
	s.frontier = s.frontier[:0]
	s.next = s.next[:0]
	t.scratch.Put(s)
}

// NearestNeighbor returns the single closest indexed point to p, if any.
// This is the allocation-free hot path used for correspondence search,
// equivalent to a hybrid query with maxNN of 1 and an unbounded radius.
func (t *KDTree) NearestNeighbor(p r3.Vector) (Neighbor, bool) {
	if t == nil || t.tree == nil {
		return Neighbor{}, false
	}
	c, dist := t.tree.Nearest(treePoint{pos: p, index: -1})
	if c == nil {
		return Neighbor{}, false
	}
	tp := c.(treePoint)
	return Neighbor{Index: tp.index, Point: tp.pos, SquaredDistance: dist}, true
}

func collectKeeperResults(h kdtree.Heap) []Neighbor {
	out := make([]Neighbor, 0, len(h))
	for _, cd := range h {
		if cd.Comparable == nil {
			continue
		}
		tp := cd.Comparable.(treePoint)
		out = append(out, Neighbor{Index: tp.index, Point: tp.pos, SquaredDistance: cd.Dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SquaredDistance < out[j].SquaredDistance })
	return out
}

// KNearestNeighbors returns up to k neighbors of p ordered by non-decreasing
// distance. k of zero returns no neighbors; a negative k is an error.
func (t *KDTree) KNearestNeighbors(p r3.Vector, k int) ([]Neighbor, error) {
	if t == nil || t.tree == nil {
		return nil, ErrIndexNotBuilt
	}
	if k < 0 {
		return nil, errors.Errorf("k must be non-negative, got %d", k)
	}
	if k == 0 {
		return nil, nil
	}
	s := t.getScratch()
	defer t.putScratch(s)
	keeper := s.nKeeper(k)
	t.tree.NearestSet(keeper, treePoint{pos: p, index: -1})
	return collectKeeperResults(keeper.Heap), nil
}

// RadiusNearestNeighbors returns all neighbors of p within radius, ordered
// by non-decreasing distance. Distances are compared squared; no square
// roots are taken per candidate.
func (t *KDTree) RadiusNearestNeighbors(p r3.Vector, radius float64) ([]Neighbor, error) {
	if t == nil || t.tree == nil {
		return nil, ErrIndexNotBuilt
	}
	if radius < 0 {
		return nil, errors.Errorf("radius must be non-negative, got %f", radius)
	}
	s := t.getScratch()
	defer t.putScratch(s)
	keeper := s.distKeeper(radius * radius)
	t.tree.NearestSet(keeper, treePoint{pos: p, index: -1})
	return collectKeeperResults(keeper.Heap), nil
}

// HybridNearestNeighbors returns up to maxNN neighbors of p, ordered by
// non-decreasing distance and truncated at the first neighbor whose squared
// distance reaches radius squared.
func (t *KDTree) HybridNearestNeighbors(p r3.Vector, radius float64, maxNN int) ([]Neighbor, error) {
	if t == nil || t.tree == nil {
		return nil, ErrIndexNotBuilt
	}
	if maxNN < 0 {
		return nil, errors.Errorf("maxNN must be non-negative, got %d", maxNN)
	}
	nbrs, err := t.KNearestNeighbors(p, maxNN)
	if err != nil {
		return nil, err
	}
	squaredRadius := radius * radius
	cut := sort.Search(len(nbrs), func(i int) bool { return nbrs[i].SquaredDistance >= squaredRadius })
	return nbrs[:cut], nil
}

// ChainedRadiusNeighbors grows a region from the seed point p by repeated
// radius searches of radiusLocal, up to chainLength hops, accumulating the
// deduplicated union of everything visited. The result is restricted to the
// points within a single bounding radius of radiusLocal*chainLength of the
// seed, and reports distances from the seed. With a chainLength of 1 this
// reduces to a plain radius search.
func (t *KDTree) ChainedRadiusNeighbors(p r3.Vector, radiusLocal float64, chainLength int) ([]Neighbor, error) {
	if t == nil || t.tree == nil {
		return nil, ErrIndexNotBuilt
	}
	if radiusLocal < 0 {
		return nil, errors.Errorf("radiusLocal must be non-negative, got %f", radiusLocal)
	}
	if chainLength <= 0 {
		return nil, errors.Errorf("chainLength must be positive, got %d", chainLength)
	}

	s := t.getScratch()
	defer t.putScratch(s)

	// Bounding pass: everything the chain may ever report.
	bounding := radiusLocal * float64(chainLength)
	keeper := s.distKeeper(bounding * bounding)
	t.tree.NearestSet(keeper, treePoint{pos: p, index: -1})
	inBound := make(map[int]float64, len(keeper.Heap))
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		inBound[cd.Comparable.(treePoint).index] = cd.Dist
	}

	// Frontier expansion, one owned buffer per hop, swapped between hops.
	squaredLocal := radiusLocal * radiusLocal
	s.frontier = append(s.frontier, p)
	for hop := 0; hop < chainLength && len(s.frontier) > 0; hop++ {
		s.next = s.next[:0]
		for _, q := range s.frontier {
			keeper := s.distKeeper(squaredLocal)
			t.tree.NearestSet(keeper, treePoint{pos: q, index: -1})
			for _, cd := range keeper.Heap {
				if cd.Comparable == nil {
					continue
				}
				tp := cd.Comparable.(treePoint)
				if s.visited[tp.index] {
					continue
				}
				s.visited[tp.index] = true
				s.visitOrder = append(s.visitOrder, tp.index)
				s.next = append(s.next, tp.pos)
			}
		}
		s.frontier, s.next = s.next, s.frontier
	}

	out := make([]Neighbor, 0, len(s.visitOrder))
	for _, idx := range s.visitOrder {
		dist, ok := inBound[idx]
		if !ok {
			continue
		}
		out = append(out, Neighbor{Index: idx, Point: t.points[idx], SquaredDistance: dist})
	}
	return out, nil
}
