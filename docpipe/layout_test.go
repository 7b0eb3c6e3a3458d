package docpipe

import (
	"strings"
	"testing"
)

// run lays s out left to right from (x, y) in 10pt glyphs, 6pt wide.
func run(x, y float64, s string) []glyph {
	var out []glyph
	for _, r := range s {
		out = append(out, glyph{bbox: bbox{x, y, x + 6, y + 10}, s: string(r)})
		x += 6
	}
	return out
}

func concat(runs ...[]glyph) []glyph {
	var out []glyph
	for _, r := range runs {
		out = append(out, r...)
	}
	return out
}

func lineTexts(lines []*textLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.text()
	}
	return out
}

func TestBuildLines_WordGap(t *testing.T) {
	// WHAT: A gap wider than the word margin becomes one space.
	// WHY: Many PDFs position words individually without space glyphs.
	glyphs := concat(run(50, 700, "Hello"), run(50+5*6+4, 700, "World"))
	lines := buildLines(glyphs, DefaultLayoutParams())
	if got := lineTexts(lines); len(got) != 1 || got[0] != "Hello World" {
		t.Errorf("lines = %q, want [Hello World]", got)
	}
}

func TestBuildLines_NoSpaceForTightGlyphs(t *testing.T) {
	glyphs := concat(run(50, 700, "全国"), run(50+2*6+0.3, 700, "大学"))
	lines := buildLines(glyphs, DefaultLayoutParams())
	if got := lineTexts(lines); len(got) != 1 || got[0] != "全国大学" {
		t.Errorf("lines = %q, want [全国大学]", got)
	}
}

func TestBuildLines_CharMarginSplits(t *testing.T) {
	// WHAT: Glyphs further apart than CharMargin × width start a new line.
	// WHY: Side-by-side columns on the same baseline must stay apart.
	glyphs := concat(run(50, 700, "left"), run(300, 700, "right"))
	lines := buildLines(glyphs, DefaultLayoutParams())
	got := lineTexts(lines)
	if len(got) != 2 || got[0] != "left" || got[1] != "right" {
		t.Errorf("lines = %q, want [left right]", got)
	}
}

func TestBuildLines_DropsBlankLines(t *testing.T) {
	glyphs := concat(run(50, 700, "   "), run(50, 600, "text"))
	lines := buildLines(glyphs, DefaultLayoutParams())
	if got := lineTexts(lines); len(got) != 1 || got[0] != "text" {
		t.Errorf("lines = %q, want [text]", got)
	}
}

func TestBuildLines_SingleGlyph(t *testing.T) {
	lines := buildLines(run(50, 700, "x"), DefaultLayoutParams())
	if got := lineTexts(lines); len(got) != 1 || got[0] != "x" {
		t.Errorf("lines = %q", got)
	}
	if buildLines(nil, DefaultLayoutParams()) != nil {
		t.Error("no glyphs should give no lines")
	}
}

func TestGroupLines_Neighbours(t *testing.T) {
	// WHAT: Aligned lines within LineMargin share a box; distant ones do not.
	// WHY: Boxes are the paragraph unit of the output.
	glyphs := concat(
		run(50, 700, "line one"),
		run(50, 686, "line two"),
		run(50, 400, "far away"),
	)
	lp := DefaultLayoutParams()
	boxes := groupLines(buildLines(glyphs, lp), lp)
	if len(boxes) != 2 {
		t.Fatalf("boxes = %d, want 2", len(boxes))
	}
	if got := lineTexts(boxes[0].lines); strings.Join(got, "|") != "line one|line two" {
		t.Errorf("box 0 = %q", got)
	}
}

func TestGroupLines_MisalignedNotMerged(t *testing.T) {
	glyphs := concat(
		run(50, 700, "ab"),
		run(200, 686, "cd"),
	)
	lp := DefaultLayoutParams()
	if boxes := groupLines(buildLines(glyphs, lp), lp); len(boxes) != 2 {
		t.Errorf("boxes = %d, want 2", len(boxes))
	}
}

func TestGroupLines_TopToBottomInsideBox(t *testing.T) {
	// Stream order bottom line first; the box still reads top down.
	glyphs := concat(run(50, 686, "second"), run(50, 700, "first"))
	lp := DefaultLayoutParams()
	boxes := groupLines(buildLines(glyphs, lp), lp)
	if len(boxes) != 1 {
		t.Fatalf("boxes = %d, want 1", len(boxes))
	}
	if got := lineTexts(boxes[0].lines); got[0] != "first" {
		t.Errorf("lines = %q", got)
	}
}

func TestLayoutPage_ReadingOrder(t *testing.T) {
	tests := []struct {
		name   string
		glyphs []glyph
		want   string
	}{
		{
			name: "bottom emitted first",
			glyphs: concat(
				run(50, 300, "bottom"),
				run(50, 700, "top"),
			),
			want: "top\n\nbottom\n\n",
		},
		{
			name: "two columns under a header",
			glyphs: concat(
				run(300, 700, "right one"),
				run(300, 686, "right two"),
				run(50, 700, "left one"),
				run(50, 686, "left two"),
				run(50, 760, "Header line"),
			),
			want: "Header line\n\nleft one\nleft two\n\nright one\nright two\n\n",
		},
		{
			name:   "empty page",
			glyphs: nil,
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := layoutPage(tt.glyphs, DefaultLayoutParams()); got != tt.want {
				t.Errorf("layoutPage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrderBoxes_CrossingBoxDefersPair(t *testing.T) {
	// WHAT: Two stacked boxes are not merged while a third box crosses
	// their joint bbox.
	// WHY: Merging around the crossing box would read it after both.
	a := &textBox{bbox: bbox{0, 0, 10, 10}}
	b := &textBox{bbox: bbox{0, 20, 10, 30}}
	c := &textBox{bbox: bbox{5, 12, 100, 18}}
	out := orderBoxes([]*textBox{a, b, c}, DefaultLayoutParams())
	if len(out) != 3 {
		t.Fatalf("got %d boxes", len(out))
	}
	if out[0] != b || out[1] != c || out[2] != a {
		t.Errorf("order = %v, want top to bottom b, c, a", out)
	}
}

func TestBBoxOverlapsIsStrict(t *testing.T) {
	a := bbox{0, 0, 10, 10}
	if a.overlaps(bbox{10, 0, 20, 10}) {
		t.Error("touching boxes must not overlap")
	}
	if !a.overlaps(bbox{9, 9, 20, 20}) {
		t.Error("intersecting boxes must overlap")
	}
}
