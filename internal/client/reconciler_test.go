package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manpreetbhatti/sketchroom/internal/model"
)

func ids(shapes []model.Shape) []string {
	out := make([]string, len(shapes))
	for i, s := range shapes {
		out[i] = s.ID
	}
	return out
}

func shape(id string) model.Shape {
	return model.Shape{ID: id, Type: model.ShapeRect, X: 1, Y: 1, Width: 5, Height: 5}
}

func TestReconcilerReset(t *testing.T) {
	r := NewReconciler()
	r.Add(shape("old"))

	r.Reset([]model.Shape{shape("a"), shape("b"), shape("a")})

	assert.Equal(t, []string{"a", "b"}, ids(r.Shapes()))
	assert.True(t, r.Add(shape("old")), "reset forgets previous ids")
}

func TestReconcilerAddDeduplicates(t *testing.T) {
	r := NewReconciler()

	assert.True(t, r.Add(shape("a")))
	assert.True(t, r.Add(shape("b")))
	assert.False(t, r.Add(shape("a")))

	assert.Equal(t, []string{"a", "b"}, ids(r.Shapes()))
}

func TestReconcilerDelete(t *testing.T) {
	r := NewReconciler()
	r.Reset([]model.Shape{shape("a"), shape("b"), shape("c")})

	assert.True(t, r.Delete("b"))
	assert.False(t, r.Delete("b"))
	assert.False(t, r.Delete("missing"))
	assert.Equal(t, []string{"a", "c"}, ids(r.Shapes()))
}

func TestReconcilerUpdate(t *testing.T) {
	r := NewReconciler()
	r.Add(shape("a"))

	assert.True(t, r.Update("a", model.ShapePatch{"stroke": json.RawMessage(`"#000000"`)}))
	assert.False(t, r.Update("missing", model.ShapePatch{"x": json.RawMessage(`5`)}))
	assert.False(t, r.Update("a", model.ShapePatch{"type": json.RawMessage(`"hexagon"`)}))

	got := r.Shapes()
	require.Len(t, got, 1)
	assert.Equal(t, "#000000", got[0].Stroke)
	assert.True(t, got[0].Type.Valid())
	assert.Equal(t, float64(5), got[0].Width)
}

func TestReconcilerClear(t *testing.T) {
	r := NewReconciler()
	r.Reset([]model.Shape{shape("a"), shape("b")})

	r.Clear()

	assert.Zero(t, r.Len())
	assert.True(t, r.Add(shape("a")))
}

func TestReconcilerShapesIsACopy(t *testing.T) {
	r := NewReconciler()
	r.Add(model.Shape{ID: "p", Type: model.ShapePath, Points: []float64{0, 0}})

	got := r.Shapes()
	got[0].Points[0] = 99

	assert.Equal(t, float64(0), r.Shapes()[0].Points[0])
}

func TestReconcilerDraftStaysOutOfSequence(t *testing.T) {
	r := NewReconciler()
	r.Begin(NewDraft("d", model.ShapeRect, 10, 10, "#EF4444"))

	require.True(t, r.Drawing())
	assert.True(t, r.Revise(30, 50))
	assert.Zero(t, r.Len(), "the draft is not committed while drawing")

	r.Reset([]model.Shape{shape("remote")})
	draft, ok := r.Draft()
	require.True(t, ok, "a snapshot does not discard the draft")
	assert.Equal(t, float64(20), draft.Width)
	assert.Equal(t, float64(40), draft.Height)

	committed, ok := r.Commit()
	require.True(t, ok)
	assert.Equal(t, "d", committed.ID)
	assert.False(t, r.Drawing())
	assert.Equal(t, []string{"remote", "d"}, ids(r.Shapes()))
}

func TestReconcilerCancel(t *testing.T) {
	r := NewReconciler()
	r.Begin(NewDraft("d", model.ShapeLine, 0, 0, "#EF4444"))
	r.Cancel()

	_, ok := r.Commit()
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestReconcilerCommitWithoutDraft(t *testing.T) {
	r := NewReconciler()
	_, ok := r.Commit()
	assert.False(t, ok)
	assert.False(t, r.Revise(1, 1))
}

func TestReconcilerRevise(t *testing.T) {
	tests := []struct {
		name  string
		kind  model.ShapeType
		moves [][2]float64
		check func(t *testing.T, s model.Shape)
	}{
		{
			name:  "path grows by one point per move",
			kind:  model.ShapePath,
			moves: [][2]float64{{12, 13}, {15, 10}},
			check: func(t *testing.T, s model.Shape) {
				assert.Equal(t, []float64{0, 0, 2, 3, 5, 0}, s.Points)
				assert.Empty(t, s.Fill)
			},
		},
		{
			name:  "circle radius follows distance",
			kind:  model.ShapeCircle,
			moves: [][2]float64{{13, 14}},
			check: func(t *testing.T, s model.Shape) {
				assert.Equal(t, float64(5), s.Radius)
				assert.Equal(t, "#EF444440", s.Fill)
			},
		},
		{
			name:  "line keeps only the last end point",
			kind:  model.ShapeLine,
			moves: [][2]float64{{20, 20}, {11, 9}},
			check: func(t *testing.T, s model.Shape) {
				assert.Equal(t, []float64{0, 0, 1, -1}, s.Points)
			},
		},
		{
			name:  "rect may be dragged up and left",
			kind:  model.ShapeRect,
			moves: [][2]float64{{4, 6}},
			check: func(t *testing.T, s model.Shape) {
				assert.Equal(t, float64(-6), s.Width)
				assert.Equal(t, float64(-4), s.Height)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReconciler()
			r.Begin(NewDraft("d", tt.kind, 10, 10, "#EF4444"))
			for _, m := range tt.moves {
				require.True(t, r.Revise(m[0], m[1]))
			}
			draft, ok := r.Draft()
			require.True(t, ok)
			tt.check(t, draft)
		})
	}
}

func TestNewText(t *testing.T) {
	s := NewText("t1", 5, 6, "hello", "#10B981")

	require.NoError(t, s.Validate())
	assert.Equal(t, model.ShapeText, s.Type)
	assert.Equal(t, "#10B981", s.Fill)
	assert.Equal(t, float64(24), s.FontSize)
}

func TestRandomProfile(t *testing.T) {
	for i := 0; i < 20; i++ {
		p := RandomProfile()
		assert.Contains(t, Palette, p.Color)
		assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, p.Name)
	}
}
