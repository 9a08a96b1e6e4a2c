package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

const (
	margin          = 36.0
	headerHeight    = 24.0
	defaultFontSize = 24.0
)

var (
	background = rgba{17, 24, 39, 1}
	defaultInk = rgba{255, 255, 255, 1}
	headerInk  = rgba{156, 163, 175, 1}
)

type rgba struct {
	r, g, b int
	a       float64
}

// ParseColor reads #RGB, #RRGGBB or #RRGGBBAA.
func ParseColor(s string) (r, g, b int, alpha float64, err error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 && len(hex) != 8 {
		return 0, 0, 0, 0, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	alpha = 1
	if len(hex) == 8 {
		alpha = float64(v&0xff) / 255
		v >>= 8
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), alpha, nil
}

func colorOr(s string, fallback rgba) rgba {
	if s == "" {
		return fallback
	}
	r, g, b, a, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return rgba{r, g, b, a}
}

// Bounds is an axis-aligned box in canvas coordinates.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

func (b *Bounds) include(x, y float64) {
	b.MinX = math.Min(b.MinX, x)
	b.MinY = math.Min(b.MinY, y)
	b.MaxX = math.Max(b.MaxX, x)
	b.MaxY = math.Max(b.MaxY, y)
}

// ShapeBounds returns the extent of a shape. Text extent is estimated from
// its font size.
func ShapeBounds(s model.Shape) Bounds {
	b := Bounds{MinX: s.X, MinY: s.Y, MaxX: s.X, MaxY: s.Y}
	switch s.Type {
	case model.ShapeRect:
		b.include(s.X+s.Width, s.Y+s.Height)
	case model.ShapeCircle:
		b.include(s.X-s.Radius, s.Y-s.Radius)
		b.include(s.X+s.Radius, s.Y+s.Radius)
	case model.ShapeLine, model.ShapePath:
		for i := 0; i+1 < len(s.Points); i += 2 {
			b.include(s.X+s.Points[i], s.Y+s.Points[i+1])
		}
	case model.ShapeText:
		size := fontSize(s)
		b.include(s.X+float64(len([]rune(s.Text)))*size*0.6, s.Y+size)
	}
	pad := s.StrokeWidth / 2
	b.MinX, b.MinY = b.MinX-pad, b.MinY-pad
	b.MaxX, b.MaxY = b.MaxX+pad, b.MaxY+pad
	return b
}

// Extent returns the box covering every shape, and false when there are none.
func Extent(shapes []model.Shape) (Bounds, bool) {
	if len(shapes) == 0 {
		return Bounds{}, false
	}
	out := ShapeBounds(shapes[0])
	for _, s := range shapes[1:] {
		b := ShapeBounds(s)
		out.include(b.MinX, b.MinY)
		out.include(b.MaxX, b.MaxY)
	}
	return out, true
}

func fontSize(s model.Shape) float64 {
	if s.FontSize > 0 {
		return s.FontSize
	}
	return defaultFontSize
}

// Maps canvas coordinates onto the page.
type viewport struct {
	scale, dx, dy float64
}

func (v viewport) x(x float64) float64 { return x*v.scale + v.dx }
func (v viewport) y(y float64) float64 { return y*v.scale + v.dy }

func fit(ext Bounds, width, height float64) viewport {
	scale := 1.0
	if w := ext.Width(); w > 0 {
		scale = math.Min(scale, width/w)
	}
	if h := ext.Height(); h > 0 {
		scale = math.Min(scale, height/h)
	}
	return viewport{
		scale: scale,
		dx:    margin - ext.MinX*scale,
		dy:    margin + headerHeight - ext.MinY*scale,
	}
}

// WritePDF renders the shapes, scaled to fit one landscape page, in the
// order they were drawn.
func WritePDF(w io.Writer, title string, shapes []model.Shape) error {
	pdf := gofpdf.New("L", "pt", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("sketchroom", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	pdf.SetFillColor(background.r, background.g, background.b)
	pdf.Rect(0, 0, pageW, pageH, "F")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(headerInk.r, headerInk.g, headerInk.b)
	pdf.Text(margin, margin, tr(fmt.Sprintf("%s  (%d shapes)", title, len(shapes))))

	ext, ok := Extent(shapes)
	if ok {
		view := fit(ext, pageW-2*margin, pageH-2*margin-headerHeight)
		pdf.SetLineCapStyle("round")
		pdf.SetLineJoinStyle("round")
		for _, s := range shapes {
			drawShape(pdf, tr, view, s)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func drawShape(pdf *gofpdf.Fpdf, tr func(string) string, v viewport, s model.Shape) {
	stroke := colorOr(s.Stroke, defaultInk)
	pdf.SetDrawColor(stroke.r, stroke.g, stroke.b)
	pdf.SetLineWidth(math.Max(s.StrokeWidth, 1) * v.scale)

	fill := func(draw func(style string)) {
		if s.Fill == "" {
			return
		}
		c := colorOr(s.Fill, defaultInk)
		pdf.SetFillColor(c.r, c.g, c.b)
		pdf.SetAlpha(c.a, "Normal")
		draw("F")
		pdf.SetAlpha(1, "Normal")
	}
	outline := func(draw func(style string)) {
		pdf.SetAlpha(stroke.a, "Normal")
		draw("D")
		pdf.SetAlpha(1, "Normal")
	}

	switch s.Type {
	case model.ShapeRect:
		x, y := math.Min(s.X, s.X+s.Width), math.Min(s.Y, s.Y+s.Height)
		draw := func(style string) {
			pdf.Rect(v.x(x), v.y(y), math.Abs(s.Width)*v.scale, math.Abs(s.Height)*v.scale, style)
		}
		fill(draw)
		outline(draw)

	case model.ShapeCircle:
		draw := func(style string) {
			pdf.Circle(v.x(s.X), v.y(s.Y), s.Radius*v.scale, style)
		}
		fill(draw)
		outline(draw)

	case model.ShapeLine, model.ShapePath:
		outline(func(string) {
			for i := 2; i+1 < len(s.Points); i += 2 {
				pdf.Line(
					v.x(s.X+s.Points[i-2]), v.y(s.Y+s.Points[i-1]),
					v.x(s.X+s.Points[i]), v.y(s.Y+s.Points[i+1]),
				)
			}
		})

	case model.ShapeText:
		ink := colorOr(s.Fill, stroke)
		size := fontSize(s)
		pdf.SetTextColor(ink.r, ink.g, ink.b)
		pdf.SetFont("Helvetica", "", 12)
		pdf.SetFontUnitSize(size * v.scale)
		pdf.SetAlpha(ink.a, "Normal")
		// Canvas text is anchored at its top-left corner, PDF text at its baseline.
		pdf.Text(v.x(s.X), v.y(s.Y+size*0.8), tr(s.Text))
		pdf.SetAlpha(1, "Normal")
	}
}
