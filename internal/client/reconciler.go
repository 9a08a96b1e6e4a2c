package client

import (
	"math"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

// Reconciler mirrors a room's shape sequence on the client. The shape being
// drawn lives in a separate draft slot and only joins the sequence on Commit.
// It is owned by the client's event loop and is not safe for concurrent use.
type Reconciler struct {
	shapes []model.Shape
	ids    map[string]struct{}
	draft  *model.Shape
}

func NewReconciler() *Reconciler {
	return &Reconciler{
		shapes: make([]model.Shape, 0),
		ids:    make(map[string]struct{}),
	}
}

// Reset replaces the sequence with an authoritative snapshot. The draft is kept.
func (r *Reconciler) Reset(shapes []model.Shape) {
	r.shapes = make([]model.Shape, 0, len(shapes))
	r.ids = make(map[string]struct{}, len(shapes))
	for _, s := range shapes {
		r.Add(s)
	}
}

// Add appends a shape unless one with the same id is already present.
func (r *Reconciler) Add(s model.Shape) bool {
	if _, dup := r.ids[s.ID]; dup {
		return false
	}
	r.shapes = append(r.shapes, s.Clone())
	r.ids[s.ID] = struct{}{}
	return true
}

func (r *Reconciler) Update(id string, patch model.ShapePatch) bool {
	i := r.index(id)
	if i < 0 {
		return false
	}
	merged, err := r.shapes[i].Merge(patch)
	if err != nil || merged.Validate() != nil {
		return false
	}
	r.shapes[i] = merged
	return true
}

func (r *Reconciler) Delete(id string) bool {
	i := r.index(id)
	if i < 0 {
		return false
	}
	r.shapes = append(r.shapes[:i], r.shapes[i+1:]...)
	delete(r.ids, id)
	return true
}

func (r *Reconciler) Clear() {
	r.shapes = make([]model.Shape, 0)
	r.ids = make(map[string]struct{})
}

func (r *Reconciler) Len() int {
	return len(r.shapes)
}

// Shapes returns a copy of the committed sequence.
func (r *Reconciler) Shapes() []model.Shape {
	out := make([]model.Shape, len(r.shapes))
	for i, s := range r.shapes {
		out[i] = s.Clone()
	}
	return out
}

func (r *Reconciler) index(id string) int {
	if _, ok := r.ids[id]; !ok {
		return -1
	}
	for i, s := range r.shapes {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Begin starts a draft, replacing any draft in progress.
func (r *Reconciler) Begin(s model.Shape) {
	d := s.Clone()
	r.draft = &d
}

func (r *Reconciler) Drawing() bool {
	return r.draft != nil
}

// Draft returns a copy of the shape being drawn.
func (r *Reconciler) Draft() (model.Shape, bool) {
	if r.draft == nil {
		return model.Shape{}, false
	}
	return r.draft.Clone(), true
}

// Revise stretches the draft towards the pointer at (x, y). Paths grow by
// one point; rects, circles and lines are resized from their origin.
func (r *Reconciler) Revise(x, y float64) bool {
	if r.draft == nil {
		return false
	}
	d := r.draft
	dx, dy := x-d.X, y-d.Y
	switch d.Type {
	case model.ShapePath:
		d.Points = append(d.Points, dx, dy)
	case model.ShapeRect:
		d.Width, d.Height = dx, dy
	case model.ShapeCircle:
		d.Radius = math.Hypot(dx, dy)
	case model.ShapeLine:
		d.Points = []float64{0, 0, dx, dy}
	default:
		return false
	}
	return true
}

// Commit moves the draft into the sequence and returns it for emission.
func (r *Reconciler) Commit() (model.Shape, bool) {
	if r.draft == nil {
		return model.Shape{}, false
	}
	s := *r.draft
	r.draft = nil
	if !r.Add(s) {
		return model.Shape{}, false
	}
	return s.Clone(), true
}

func (r *Reconciler) Cancel() {
	r.draft = nil
}

// NewDraft returns the initial form of a shape drawn with the given tool at
// (x, y). Outlined kinds get a translucent fill in the same color.
func NewDraft(id string, t model.ShapeType, x, y float64, color string) model.Shape {
	s := model.Shape{
		ID:          id,
		Type:        t,
		X:           x,
		Y:           y,
		Stroke:      color,
		StrokeWidth: 2,
	}
	switch t {
	case model.ShapePath:
		s.Points = []float64{0, 0}
	case model.ShapeLine:
		s.Points = []float64{0, 0, 0, 0}
		s.Fill = color + "40"
	case model.ShapeRect, model.ShapeCircle:
		s.Fill = color + "40"
	}
	return s
}

// NewText returns a committed text shape.
func NewText(id string, x, y float64, text, color string) model.Shape {
	return model.Shape{
		ID:       id,
		Type:     model.ShapeText,
		X:        x,
		Y:        y,
		Text:     text,
		Fill:     color,
		FontSize: 24,
	}
}
