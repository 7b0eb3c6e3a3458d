// CLAUDE:SUMMARY PDF layout analysis: glyphs → lines → text boxes → reading order (hierarchical box clustering).
package docpipe

import (
	"container/heap"
	"math"
	"sort"
	"strings"
)

// LayoutParams tunes PDF layout analysis. Margins are ratios of glyph or
// line size.
type LayoutParams struct {
	// LineMargin: lines closer than this × line height may share a box.
	LineMargin float64 `json:"line_margin" yaml:"line_margin"`
	// WordMargin: a gap wider than this × glyph size becomes a space.
	WordMargin float64 `json:"word_margin" yaml:"word_margin"`
	// CharMargin: glyphs closer than this × glyph width share a line.
	CharMargin float64 `json:"char_margin" yaml:"char_margin"`
	// BoxesFlow in [-1, 1] weighs horizontal (-1) against vertical (+1)
	// position when ordering boxes.
	BoxesFlow float64 `json:"boxes_flow" yaml:"boxes_flow"`
}

// DefaultLayoutParams returns the parameters used for CJK and mixed-script
// documents.
func DefaultLayoutParams() LayoutParams {
	return LayoutParams{LineMargin: 0.5, WordMargin: 0.1, CharMargin: 2.0, BoxesFlow: 0.5}
}

// lineOverlap is the minimum vertical overlap, as a ratio of the smaller
// glyph height, for two glyphs to sit on the same line.
const lineOverlap = 0.5

type bbox struct{ x0, y0, x1, y1 float64 }

func (b bbox) width() float64  { return b.x1 - b.x0 }
func (b bbox) height() float64 { return b.y1 - b.y0 }

func (b bbox) union(o bbox) bbox {
	return bbox{math.Min(b.x0, o.x0), math.Min(b.y0, o.y0), math.Max(b.x1, o.x1), math.Max(b.y1, o.y1)}
}

// overlaps is a strict intersection test: touching edges do not overlap.
func (b bbox) overlaps(o bbox) bool {
	return !(o.x1 <= b.x0 || b.x1 <= o.x0 || o.y1 <= b.y0 || b.y1 <= o.y0)
}

func (b bbox) isVOverlap(o bbox) bool { return o.y0 <= b.y1 && b.y0 <= o.y1 }
func (b bbox) isHOverlap(o bbox) bool { return o.x0 <= b.x1 && b.x0 <= o.x1 }

func (b bbox) vOverlap(o bbox) float64 {
	if !b.isVOverlap(o) {
		return 0
	}
	return math.Min(math.Abs(b.y0-o.y1), math.Abs(b.y1-o.y0))
}

func (b bbox) hDistance(o bbox) float64 {
	if b.isHOverlap(o) {
		return 0
	}
	return math.Min(math.Abs(b.x0-o.x1), math.Abs(b.x1-o.x0))
}

// glyph is one positioned character. y grows upward.
type glyph struct {
	bbox
	s string
}

type textLine struct {
	bbox
	sb     strings.Builder
	cursor float64 // x1 of the last glyph added
}

func newTextLine(g glyph) *textLine {
	return &textLine{bbox: g.bbox, cursor: math.Inf(1)}
}

func (l *textLine) add(g glyph, wordMargin float64) {
	margin := wordMargin * math.Max(g.width(), g.height())
	if l.cursor < g.x0-margin && g.s != " " && !strings.HasSuffix(l.sb.String(), " ") {
		l.sb.WriteByte(' ')
	}
	l.sb.WriteString(g.s)
	l.cursor = g.x1
	l.bbox = l.bbox.union(g.bbox)
}

func (l *textLine) text() string { return l.sb.String() }

// neighbour reports whether o may share a text box with l.
func (l *textLine) neighbour(o *textLine, lineMargin float64) bool {
	d := lineMargin * l.height()
	search := bbox{l.x0, l.y0 - d, l.x1, l.y1 + d}
	if !search.overlaps(o.bbox) {
		return false
	}
	if math.Abs(o.height()-l.height()) > d {
		return false
	}
	return math.Abs(o.x0-l.x0) <= d ||
		math.Abs(o.x1-l.x1) <= d ||
		math.Abs((o.x0+o.x1)/2-(l.x0+l.x1)/2) <= d
}

type textBox struct {
	bbox
	lines []*textLine
}

// buildLines groups glyphs, in content-stream order, into horizontal lines.
// Whitespace-only lines are dropped.
func buildLines(glyphs []glyph, lp LayoutParams) []*textLine {
	if len(glyphs) == 0 {
		return nil
	}
	var lines []*textLine
	var line *textLine
	for i := 1; i < len(glyphs); i++ {
		g0, g1 := glyphs[i-1], glyphs[i]
		halign := g0.isVOverlap(g1.bbox) &&
			math.Min(g0.height(), g1.height())*lineOverlap < g0.vOverlap(g1.bbox) &&
			g0.hDistance(g1.bbox) < math.Max(g0.width(), g1.width())*lp.CharMargin
		switch {
		case halign && line != nil:
			line.add(g1, lp.WordMargin)
		case line != nil:
			lines = append(lines, line)
			line = nil
		case halign:
			line = newTextLine(g0)
			line.add(g0, lp.WordMargin)
			line.add(g1, lp.WordMargin)
		default:
			single := newTextLine(g0)
			single.add(g0, lp.WordMargin)
			lines = append(lines, single)
		}
	}
	if line == nil {
		line = newTextLine(glyphs[len(glyphs)-1])
		line.add(glyphs[len(glyphs)-1], lp.WordMargin)
	}
	lines = append(lines, line)

	kept := lines[:0]
	for _, l := range lines {
		if l.width() > 0 && l.height() > 0 && strings.TrimSpace(l.text()) != "" {
			kept = append(kept, l)
		}
	}
	return kept
}

// groupLines merges neighbouring lines transitively into boxes. Boxes come
// out in order of their first line; lines inside a box run top to bottom.
func groupLines(lines []*textLine, lp LayoutParams) []*textBox {
	parent := make([]int, len(lines))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i, a := range lines {
		for j, b := range lines {
			if i != j && a.neighbour(b, lp.LineMargin) {
				ri, rj := find(i), find(j)
				if ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	var boxes []*textBox
	byRoot := make(map[int]*textBox)
	for i, l := range lines {
		r := find(i)
		b, ok := byRoot[r]
		if !ok {
			b = &textBox{bbox: l.bbox}
			byRoot[r] = b
			boxes = append(boxes, b)
		}
		b.lines = append(b.lines, l)
		b.bbox = b.bbox.union(l.bbox)
	}
	for _, b := range boxes {
		sort.SliceStable(b.lines, func(i, j int) bool { return b.lines[i].y1 > b.lines[j].y1 })
	}
	return boxes
}

// cluster is a node of the box hierarchy: a leaf box or a pair of clusters.
type cluster struct {
	bbox
	id   int
	box  *textBox
	kids []*cluster
}

type clusterPair struct {
	skipIsany bool
	dist      float64
	id1, id2  int
	a, b      *cluster
}

type pairHeap []clusterPair

func (h pairHeap) Len() int { return len(h) }
func (h pairHeap) Less(i, j int) bool {
	if h[i].skipIsany != h[j].skipIsany {
		return !h[i].skipIsany
	}
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	if h[i].id1 != h[j].id1 {
		return h[i].id1 < h[j].id1
	}
	return h[i].id2 < h[j].id2
}
func (h pairHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x any)   { *h = append(*h, x.(clusterPair)) }
func (h *pairHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// wasted is the area of the joint bbox not covered by either cluster.
func wasted(a, b *cluster) float64 {
	j := a.union(b.bbox)
	return j.width()*j.height() - a.width()*a.height() - b.width()*b.height()
}

// orderBoxes returns boxes in reading order. Clusters are merged bottom up,
// closest pair first, skipping for now pairs whose joint bbox intersects a
// third cluster. Each merged pair is ordered by flow key and a depth-first
// walk yields the final order.
func orderBoxes(boxes []*textBox, lp LayoutParams) []*textBox {
	if len(boxes) < 2 {
		return boxes
	}
	nextID := 0
	live := make([]*cluster, 0, len(boxes))
	for _, b := range boxes {
		live = append(live, &cluster{bbox: b.bbox, id: nextID, box: b})
		nextID++
	}

	h := &pairHeap{}
	for i := range live {
		for j := i + 1; j < len(live); j++ {
			*h = append(*h, clusterPair{dist: wasted(live[i], live[j]), id1: live[i].id, id2: live[j].id, a: live[i], b: live[j]})
		}
	}
	heap.Init(h)

	done := make(map[int]bool)
	isany := func(a, b *cluster) bool {
		j := a.union(b.bbox)
		for _, c := range live {
			if c != a && c != b && j.overlaps(c.bbox) {
				return true
			}
		}
		return false
	}

	for h.Len() > 0 {
		pr := heap.Pop(h).(clusterPair)
		if done[pr.id1] || done[pr.id2] {
			continue
		}
		if !pr.skipIsany && isany(pr.a, pr.b) {
			pr.skipIsany = true
			heap.Push(h, pr)
			continue
		}
		g := &cluster{bbox: pr.a.union(pr.b.bbox), id: nextID, kids: []*cluster{pr.a, pr.b}}
		nextID++
		done[pr.id1], done[pr.id2] = true, true

		rest := live[:0]
		for _, c := range live {
			if c != pr.a && c != pr.b {
				rest = append(rest, c)
			}
		}
		live = rest
		for _, other := range live {
			heap.Push(h, clusterPair{dist: wasted(g, other), id1: g.id, id2: other.id, a: g, b: other})
		}
		live = append(live, g)
	}

	flow := func(c *cluster) float64 {
		return (1-lp.BoxesFlow)*c.x0 - (1+lp.BoxesFlow)*(c.y0+c.y1)
	}
	out := make([]*textBox, 0, len(boxes))
	var walk func(*cluster)
	walk = func(c *cluster) {
		if c.box != nil {
			out = append(out, c.box)
			return
		}
		sort.SliceStable(c.kids, func(i, j int) bool { return flow(c.kids[i]) < flow(c.kids[j]) })
		for _, k := range c.kids {
			walk(k)
		}
	}
	for _, c := range live {
		walk(c)
	}
	return out
}

// layoutPage renders one page: each line ends with a newline and each box
// is followed by a blank line.
func layoutPage(glyphs []glyph, lp LayoutParams) string {
	lines := buildLines(glyphs, lp)
	boxes := orderBoxes(groupLines(lines, lp), lp)
	var sb strings.Builder
	for _, b := range boxes {
		for _, l := range b.lines {
			sb.WriteString(l.text())
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
