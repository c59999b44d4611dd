package mpi

import (
	"fmt"
	"image"
	"image/color"
)

// PrimitiveKind identifies a drawing primitive.
type PrimitiveKind string

const (
	PrimBox  PrimitiveKind = "box"
	PrimLine PrimitiveKind = "line"
	PrimText PrimitiveKind = "text"
)

// Primitive is one shape of a scene. Coordinates are normalized to the unit
// square: (0,0) is the top left corner, (1,1) the bottom right.
type Primitive struct {
	Kind  PrimitiveKind
	Color color.Color
	X0    float64
	Y0    float64
	X1    float64
	Y1    float64

	// Size is the text height relative to the view. Text only.
	Size float64
	Text string
}

func (p Primitive) String() string {
	r, g, b, _ := p.Color.RGBA()
	rgb := fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
	switch p.Kind {
	case PrimText:
		return fmt.Sprintf("text %s (%.2f,%.2f) size=%.2f %q", rgb, p.X0, p.Y0, p.Size, p.Text)
	default:
		return fmt.Sprintf("%s %s (%.2f,%.2f)-(%.2f,%.2f)", p.Kind, rgb, p.X0, p.Y0, p.X1, p.Y1)
	}
}

// Frame is a completed scene.
type Frame struct {
	Rank       int
	Seq        int
	Bounds     image.Rectangle
	Primitives []Primitive
}

// ViewSink receives every completed frame. It is called on the participant's
// goroutine without the World lock held.
type ViewSink interface {
	Frame(Frame)
}

// ViewSinkFunc adapts a function to the ViewSink interface.
type ViewSinkFunc func(Frame)

// Frame calls f(fr).
func (f ViewSinkFunc) Frame(fr Frame) { f(fr) }

// View is a participant's drawing surface. The engine never reads it.
//
// Every method is safe on a nil *View, so workload code may draw without
// checking whether a view was created.
type View struct {
	rank   int
	bounds image.Rectangle
	sink   ViewSink

	scene    []Primitive
	open     bool
	disposed bool
	frames   int
	last     Frame
}

// BeginScene starts a new scene, discarding any scene not yet ended.
func (v *View) BeginScene() {
	if v == nil || v.disposed {
		return
	}
	v.scene = nil
	v.open = true
}

// EndScene publishes the current scene as a frame.
func (v *View) EndScene() {
	if v == nil || !v.open {
		return
	}
	v.frames++
	v.last = Frame{Rank: v.rank, Seq: v.frames, Bounds: v.bounds, Primitives: v.scene}
	v.scene = nil
	v.open = false
	if v.sink != nil {
		v.sink.Frame(v.last)
	}
}

// Box adds a filled box with corners (x0,y0) and (x1,y1).
func (v *View) Box(c color.Color, x0, y0, x1, y1 float64) {
	v.add(Primitive{Kind: PrimBox, Color: c, X0: x0, Y0: y0, X1: x1, Y1: y1})
}

// Line adds a line from (x0,y0) to (x1,y1).
func (v *View) Line(c color.Color, x0, y0, x1, y1 float64) {
	v.add(Primitive{Kind: PrimLine, Color: c, X0: x0, Y0: y0, X1: x1, Y1: y1})
}

// Text adds msg at (x,y) with the given relative size.
func (v *View) Text(c color.Color, x, y, size float64, msg string) {
	v.add(Primitive{Kind: PrimText, Color: c, X0: x, Y0: y, Size: size, Text: msg})
}

func (v *View) add(p Primitive) {
	if v == nil || !v.open {
		return
	}
	if p.Color == nil {
		p.Color = color.Black
	}
	v.scene = append(v.scene, p)
}

// Dispose drops any open scene. Later calls draw nothing.
func (v *View) Dispose() {
	if v == nil {
		return
	}
	v.scene = nil
	v.open = false
	v.disposed = true
	v.sink = nil
}

// Frames returns the number of frames published so far.
func (v *View) Frames() int {
	if v == nil {
		return 0
	}
	return v.frames
}

// Last returns the most recently published frame.
func (v *View) Last() Frame {
	if v == nil {
		return Frame{}
	}
	return v.last
}

// CreateView opens the participant's view at the given screen rectangle. A
// second call returns the existing view.
func (p *Proc) CreateView(x, y, width, height int) *View {
	if p.view == nil {
		p.view = &View{
			rank:   p.rank,
			bounds: image.Rect(x, y, x+width, y+height),
			sink:   p.world.views,
		}
	}
	return p.view
}

// View returns the participant's view, or nil.
func (p *Proc) View() *View { return p.view }

// DestroyView disposes of the participant's view.
func (p *Proc) DestroyView() {
	p.view.Dispose()
	p.view = nil
}
