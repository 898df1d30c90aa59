// Package pptxtest builds minimal PresentationML packages for tests.
package pptxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const (
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	relOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relSlide          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// Deck describes a package to build.
type Deck struct {
	Slides []Slide

	// SlidePartName names the part of the n-th slide (1-based). Defaults to
	// ppt/slides/slide<n>.xml.
	SlidePartName func(n int) string

	// Override replaces generated parts by name. A nil value drops the part;
	// names that are not generated are added.
	Override map[string][]byte
}

// Slide is an ordered list of shapes.
type Slide struct {
	Shapes []Shape
}

type shapeKind int

const (
	kindText shapeKind = iota
	kindPicture
	kindPlaceholderPicture
	kindLinkedPicture
	kindMovie
	kindNoText
	kindGroup
	kindRaw
)

// Shape is a shape element on a slide.
type Shape struct {
	kind     shapeKind
	name     string
	paras    []string
	data     []byte
	link     string
	children []Shape
	raw      string
}

// Text is a p:sp with one a:p per paragraph. A newline inside a paragraph
// becomes an a:br.
func Text(name string, paragraphs ...string) Shape {
	return Shape{kind: kindText, name: name, paras: paragraphs}
}

// Picture is a p:pic embedding data as a media part.
func Picture(name string, data []byte) Shape {
	return Shape{kind: kindPicture, name: name, data: data}
}

// PlaceholderPicture is a p:pic that fills a picture placeholder.
func PlaceholderPicture(name string, data []byte) Shape {
	return Shape{kind: kindPlaceholderPicture, name: name, data: data}
}

// LinkedPicture is a p:pic whose blip links to an external URL.
func LinkedPicture(name, url string) Shape {
	return Shape{kind: kindLinkedPicture, name: name, link: url}
}

// Movie is a p:pic carrying a video file reference and a poster frame.
func Movie(name string, poster []byte) Shape {
	return Shape{kind: kindMovie, name: name, data: poster}
}

// NoText is a p:sp without a text body, e.g. a plain rectangle.
func NoText(name string) Shape {
	return Shape{kind: kindNoText, name: name}
}

// Group wraps shapes in a p:grpSp.
func Group(name string, children ...Shape) Shape {
	return Shape{kind: kindGroup, name: name, children: children}
}

// Raw inserts fragment verbatim as a child of p:spTree.
func Raw(fragment string) Shape {
	return Shape{kind: kindRaw, raw: fragment}
}

// Build returns the package bytes.
func Build(d Deck) ([]byte, error) {
	parts := map[string][]byte{}

	slideName := d.SlidePartName
	if slideName == nil {
		slideName = func(n int) string { return fmt.Sprintf("ppt/slides/slide%d.xml", n) }
	}

	var (
		presRels  []rel
		sldIDs    strings.Builder
		overrides strings.Builder
		mediaSeq  int
	)

	for i, s := range d.Slides {
		n := i + 1
		part := slideName(n)
		rID := fmt.Sprintf("rId%d", n)

		presRels = append(presRels, rel{ID: rID, Type: relSlide, Target: strings.TrimPrefix(part, "ppt/")})
		fmt.Fprintf(&sldIDs, `<p:sldId id="%d" r:id="%s"/>`, 255+n, rID)
		fmt.Fprintf(&overrides, `<Override PartName="/%s" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, part)

		sb := &slideBuilder{part: part, parts: parts, mediaSeq: &mediaSeq}
		var tree strings.Builder
		for _, sh := range s.Shapes {
			sb.render(&tree, sh)
		}

		parts[part] = []byte(xml.Header + `<p:sld xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
			`<p:cSld><p:spTree>` +
			`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
			tree.String() +
			`</p:spTree></p:cSld></p:sld>`)

		if len(sb.rels) > 0 {
			data, err := marshalRels(sb.rels)
			if err != nil {
				return nil, err
			}
			dir, base := path.Split(part)
			parts[dir+"_rels/"+base+".rels"] = data
		}
	}

	parts["[Content_Types].xml"] = []byte(xml.Header +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Default Extension="png" ContentType="image/png"/>` +
		`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>` +
		overrides.String() +
		`</Types>`)

	pkgRels, err := marshalRels([]rel{{ID: "rId1", Type: relOfficeDocument, Target: "ppt/presentation.xml"}})
	if err != nil {
		return nil, err
	}
	parts["_rels/.rels"] = pkgRels

	parts["ppt/presentation.xml"] = []byte(xml.Header +
		`<p:presentation xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
		`<p:sldIdLst>` + sldIDs.String() + `</p:sldIdLst>` +
		`<p:sldSz cx="9144000" cy="6858000"/><p:notesSz cx="6858000" cy="9144000"/>` +
		`</p:presentation>`)

	presRelsData, err := marshalRels(presRels)
	if err != nil {
		return nil, err
	}
	parts["ppt/_rels/presentation.xml.rels"] = presRelsData

	for name, data := range d.Override {
		if data == nil {
			delete(parts, name)
			continue
		}
		parts[name] = data
	}

	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := w.Create(name)
		if err != nil {
			return nil, fmt.Errorf("creating zip entry %s: %w", name, err)
		}
		if _, err := fw.Write(parts[name]); err != nil {
			return nil, fmt.Errorf("writing zip entry %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Write builds d into dir/filename and returns the file path.
func Write(tb testing.TB, dir, filename string, d Deck) string {
	tb.Helper()
	data, err := Build(d)
	if err != nil {
		tb.Fatalf("building deck: %v", err)
	}
	deckPath := filepath.Join(dir, filename)
	if err := os.WriteFile(deckPath, data, 0o644); err != nil {
		tb.Fatalf("writing deck: %v", err)
	}
	return deckPath
}

// PNG returns a solid-colour PNG of the given size.
func PNG(tb testing.TB, width, height int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 100, G: 150, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		tb.Fatalf("creating test PNG: %v", err)
	}
	return buf.Bytes()
}

type slideBuilder struct {
	part     string
	parts    map[string][]byte
	rels     []rel
	shapeID  int
	mediaSeq *int
}

func (b *slideBuilder) nextID() int {
	b.shapeID++
	return b.shapeID + 1
}

func (b *slideBuilder) addMedia(data []byte) string {
	*b.mediaSeq++
	name := fmt.Sprintf("media/image%d.png", *b.mediaSeq)
	b.parts["ppt/"+name] = data
	rID := fmt.Sprintf("rId%d", len(b.rels)+1)
	b.rels = append(b.rels, rel{ID: rID, Type: relImage, Target: "../" + name})
	return rID
}

func (b *slideBuilder) addLink(url string) string {
	rID := fmt.Sprintf("rId%d", len(b.rels)+1)
	b.rels = append(b.rels, rel{ID: rID, Type: relImage, Target: url, TargetMode: "External"})
	return rID
}

func (b *slideBuilder) render(sb *strings.Builder, s Shape) {
	id := b.nextID()
	switch s.kind {
	case kindText:
		fmt.Fprintf(sb, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>`, id, escape(s.name))
		for _, para := range s.paras {
			sb.WriteString(`<a:p>`)
			for j, line := range strings.Split(para, "\n") {
				if j > 0 {
					sb.WriteString(`<a:br/>`)
				}
				if line != "" {
					fmt.Fprintf(sb, `<a:r><a:rPr lang="en-US"/><a:t>%s</a:t></a:r>`, escape(line))
				}
			}
			sb.WriteString(`<a:endParaRPr lang="en-US"/></a:p>`)
		}
		sb.WriteString(`</p:txBody></p:sp>`)

	case kindPicture, kindPlaceholderPicture, kindMovie:
		rID := b.addMedia(s.data)
		nvPr := `<p:nvPr/>`
		switch s.kind {
		case kindPlaceholderPicture:
			nvPr = `<p:nvPr><p:ph type="pic" idx="1"/></p:nvPr>`
		case kindMovie:
			nvPr = `<p:nvPr><a:videoFile r:link="` + b.addLink("https://example.com/clip.mp4") + `"/></p:nvPr>`
		}
		fmt.Fprintf(sb, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="%s"/><p:cNvPicPr/>%s</p:nvPicPr><p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill><p:spPr/></p:pic>`,
			id, escape(s.name), nvPr, rID)

	case kindLinkedPicture:
		rID := b.addLink(s.link)
		fmt.Fprintf(sb, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="%s"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr><p:blipFill><a:blip r:link="%s"/></p:blipFill><p:spPr/></p:pic>`,
			id, escape(s.name), rID)

	case kindNoText:
		fmt.Fprintf(sb, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr/></p:sp>`, id, escape(s.name))

	case kindGroup:
		fmt.Fprintf(sb, `<p:grpSp><p:nvGrpSpPr><p:cNvPr id="%d" name="%s"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>`, id, escape(s.name))
		for _, child := range s.children {
			b.render(sb, child)
		}
		sb.WriteString(`</p:grpSp>`)

	case kindRaw:
		sb.WriteString(s.raw)
	}
}

type rel struct {
	XMLName    xml.Name `xml:"Relationship"`
	ID         string   `xml:"Id,attr"`
	Type       string   `xml:"Type,attr"`
	Target     string   `xml:"Target,attr"`
	TargetMode string   `xml:"TargetMode,attr,omitempty"`
}

func marshalRels(rs []rel) ([]byte, error) {
	type relationships struct {
		XMLName xml.Name `xml:"Relationships"`
		Xmlns   string   `xml:"xmlns,attr"`
		Rels    []rel
	}
	data, err := xml.Marshal(relationships{Xmlns: nsRel, Rels: rs})
	if err != nil {
		return nil, fmt.Errorf("marshalling relationships: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
