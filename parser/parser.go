package parser

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidPackage is returned when a file is not a readable
	// PresentationML package (not a ZIP, missing main part, bad XML).
	ErrInvalidPackage = errors.New("parser: invalid presentation package")

	// ErrMissingPart is returned when a relationship names a part that is
	// not present in the package.
	ErrMissingPart = errors.New("parser: referenced part missing from package")
)

// Deck is a fully loaded slide deck. Parsing reads every slide and media
// part up front, so a Deck holds no open file handles.
type Deck struct {
	Path   string
	Slides []Slide
}

// Slide is one slide in presentation order.
type Slide struct {
	Index  int    // 0-based position in the slide list
	Part   string // package part name, e.g. ppt/slides/slide3.xml
	Shapes []Shape
}

// Shape is one of TextShape, PictureShape or OtherShape. The set is closed:
// callers switch on the concrete type.
type Shape interface {
	ShapeName() string
	shape()
}

// TextShape is a p:sp element with a text body.
type TextShape struct {
	Name       string
	Paragraphs []string
}

// Text joins the paragraphs with newlines.
func (s TextShape) Text() string { return strings.Join(s.Paragraphs, "\n") }

func (s TextShape) ShapeName() string { return s.Name }
func (TextShape) shape()              {}

// PictureShape is a p:pic element with an embedded image. Data holds the
// media part bytes exactly as stored in the package.
type PictureShape struct {
	Name  string
	Media string // package part name of the image
	Data  []byte
}

func (s PictureShape) ShapeName() string { return s.Name }
func (PictureShape) shape()              {}

// OtherShape is any shape that carries neither text nor an embedded picture:
// groups, graphic frames, connectors, linked pictures, movies,
// and p:sp elements without a text body.
type OtherShape struct {
	Name    string
	Element string // local XML element name, e.g. "grpSp"
	Reason  string
}

func (s OtherShape) ShapeName() string { return s.Name }
func (OtherShape) shape()              {}
