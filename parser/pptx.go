package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html/charset"
)

// PPTXParser reads PresentationML packages (.pptx and its macro, show and
// template variants, which share the same part layout).
type PPTXParser struct{}

// Extensions lists the file extensions of the packages PPTXParser reads.
var Extensions = []string{".pptx", ".pptm", ".ppsx", ".potx"}

// IsDeckFile reports whether name carries one of Extensions, ignoring case.
func IsDeckFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Parse opens the package at path, resolves the slide list through the
// presentation part and classifies every top-level shape on every slide.
// The archive is closed before Parse returns.
func (p *PPTXParser) Parse(path string) (*Deck, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PPTX: %w", ErrInvalidPackage, err)
	}
	defer r.Close()

	pkg := newPackage(&r.Reader)

	mainPart, err := pkg.mainPart()
	if err != nil {
		return nil, err
	}

	slideParts, err := pkg.slideParts(mainPart)
	if err != nil {
		return nil, err
	}

	deck := &Deck{Path: path, Slides: make([]Slide, 0, len(slideParts))}
	for i, part := range slideParts {
		shapes, err := pkg.readSlide(part)
		if err != nil {
			return nil, fmt.Errorf("slide %d (%s): %w", i+1, part, err)
		}
		deck.Slides = append(deck.Slides, Slide{Index: i, Part: part, Shapes: shapes})
	}

	return deck, nil
}

// Parse reads a deck with the default PPTX parser.
func Parse(path string) (*Deck, error) {
	return (&PPTXParser{}).Parse(path)
}

// pptxPackage indexes the ZIP entries of an OPC package. Part names are
// matched exactly first and case-insensitively as a fallback, since OPC
// part names are case-insensitive.
type pptxPackage struct {
	files  map[string]*zip.File
	folded map[string]*zip.File
}

func newPackage(zr *zip.Reader) *pptxPackage {
	p := &pptxPackage{
		files:  make(map[string]*zip.File, len(zr.File)),
		folded: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "/")
		p.files[name] = f
		p.folded[strings.ToLower(name)] = f
	}
	return p
}

func (p *pptxPackage) file(name string) *zip.File {
	if f, ok := p.files[name]; ok {
		return f
	}
	return p.folded[strings.ToLower(name)]
}

func (p *pptxPackage) read(name string) ([]byte, error) {
	f := p.file(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingPart, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrInvalidPackage, name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidPackage, name, err)
	}
	return data, nil
}

func (p *pptxPackage) decode(name string, v any) error {
	data, err := p.read(name)
	if err != nil {
		return err
	}
	if err := decodeXML(data, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %w", ErrInvalidPackage, name, err)
	}
	return nil
}

// rels returns the relationships of a part keyed by id. A part without a
// .rels file has no relationships.
func (p *pptxPackage) rels(part string) (map[string]xmlRelationship, error) {
	relsPath := relsPathFor(part)
	if p.file(relsPath) == nil {
		return map[string]xmlRelationship{}, nil
	}

	var rels xmlRelationships
	if err := p.decode(relsPath, &rels); err != nil {
		return nil, err
	}

	result := make(map[string]xmlRelationship, len(rels.Rels))
	for _, rel := range rels.Rels {
		result[rel.ID] = rel
	}
	return result, nil
}

// mainPart locates the presentation part through the package relationships,
// falling back to the conventional name.
func (p *pptxPackage) mainPart() (string, error) {
	rels, err := p.rels("")
	if err != nil {
		return "", err
	}
	for _, rel := range rels {
		if strings.HasSuffix(rel.Type, "/officeDocument") && rel.TargetMode != "External" {
			return resolveTarget("", rel.Target), nil
		}
	}
	if p.file("ppt/presentation.xml") != nil {
		return "ppt/presentation.xml", nil
	}
	return "", fmt.Errorf("%w: no presentation part", ErrInvalidPackage)
}

// slideParts returns the slide part names in presentation order.
func (p *pptxPackage) slideParts(mainPart string) ([]string, error) {
	var pres xmlPresentation
	if err := p.decode(mainPart, &pres); err != nil {
		return nil, err
	}

	rels, err := p.rels(mainPart)
	if err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(pres.SlideIDs))
	for _, sld := range pres.SlideIDs {
		rID := sld.relID()
		rel, ok := rels[rID]
		if !ok {
			return nil, fmt.Errorf("%w: slide relationship %q", ErrMissingPart, rID)
		}
		if !strings.HasSuffix(rel.Type, "/slide") {
			return nil, fmt.Errorf("%w: relationship %q is %s, not a slide", ErrInvalidPackage, rID, rel.Type)
		}
		parts = append(parts, resolveTarget(mainPart, rel.Target))
	}
	return parts, nil
}

func (p *pptxPackage) readSlide(part string) ([]Shape, error) {
	var slide xmlSlide
	if err := p.decode(part, &slide); err != nil {
		return nil, err
	}

	rels, err := p.rels(part)
	if err != nil {
		return nil, err
	}

	shapes := make([]Shape, 0, len(slide.Tree.Children))
	for _, el := range slide.Tree.Children {
		shape, err := p.classify(part, el, rels)
		if err != nil {
			return nil, err
		}
		if shape == nil {
			continue
		}
		shapes = append(shapes, shape)
	}
	return shapes, nil
}

// classify turns one p:spTree child into a Shape. Non-shape children of the
// tree (group properties, extension lists, alternate content) yield nil.
func (p *pptxPackage) classify(part string, el xmlShapeElem, rels map[string]xmlRelationship) (Shape, error) {
	switch el.XMLName.Local {
	case "sp":
		name := el.NvSpPr.name()
		if el.TxBody == nil {
			return OtherShape{Name: name, Element: "sp", Reason: "no text body"}, nil
		}
		paras := make([]string, 0, len(el.TxBody.Paragraphs))
		for _, para := range el.TxBody.Paragraphs {
			paras = append(paras, para.text())
		}
		return TextShape{Name: name, Paragraphs: paras}, nil

	case "pic":
		return p.classifyPicture(part, el, rels)

	case "grpSp", "graphicFrame", "cxnSp", "contentPart":
		name := el.NvGrpSpPr.name()
		if name == "" {
			name = el.NvGraphicFramePr.name()
		}
		if name == "" {
			name = el.NvCxnSpPr.name()
		}
		return OtherShape{Name: name, Element: el.XMLName.Local}, nil

	default:
		return nil, nil
	}
}

func (p *pptxPackage) classifyPicture(part string, el xmlShapeElem, rels map[string]xmlRelationship) (Shape, error) {
	name := el.NvPicPr.name()
	other := func(reason string) (Shape, error) {
		slog.Debug("pptx: picture not extracted", "slide", part, "shape", name, "reason", reason)
		return OtherShape{Name: name, Element: "pic", Reason: reason}, nil
	}

	if el.NvPicPr != nil && el.NvPicPr.NvPr.VideoFile != nil {
		return other("movie")
	}
	if el.BlipFill == nil || el.BlipFill.Blip == nil {
		return other("no embedded image")
	}
	if el.BlipFill.Blip.Embed == "" {
		if el.BlipFill.Blip.Link != "" {
			return other("linked image")
		}
		return other("no embedded image")
	}

	rID := el.BlipFill.Blip.Embed
	rel, ok := rels[rID]
	if !ok {
		return nil, fmt.Errorf("%w: image relationship %q on shape %q", ErrMissingPart, rID, name)
	}
	if rel.TargetMode == "External" {
		return other("linked image")
	}

	media := resolveTarget(part, rel.Target)
	data, err := p.read(media)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return other("empty media part")
	}

	return PictureShape{Name: name, Media: media, Data: data}, nil
}

// relsPathFor maps a part name to its relationships part. The empty part
// name denotes the package itself.
func relsPathFor(part string) string {
	if part == "" {
		return "_rels/.rels"
	}
	dir, base := path.Split(part)
	return dir + "_rels/" + base + ".rels"
}

// resolveTarget resolves a relationship target against the source part.
// Absolute targets are package-rooted.
func resolveTarget(source, target string) string {
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	target = strings.ReplaceAll(target, "\\", "/")
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return strings.TrimPrefix(path.Clean(path.Join(path.Dir(source), target)), "/")
}

func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document")
		}
		return err
	}
	return nil
}

// OPC relationships
type xmlRelationships struct {
	Rels []xmlRelationship `xml:"Relationship"`
}

type xmlRelationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

// PresentationML structures (simplified)
type xmlPresentation struct {
	XMLName  xml.Name     `xml:"presentation"`
	SlideIDs []xmlSlideID `xml:"sldIdLst>sldId"`
}

// xmlSlideID keeps raw attributes because the unqualified id and r:id share
// a local name.
type xmlSlideID struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func (s xmlSlideID) relID() string {
	for _, a := range s.Attrs {
		if a.Name.Local == "id" && a.Name.Space != "" {
			return a.Value
		}
	}
	return ""
}

type xmlSlide struct {
	XMLName xml.Name     `xml:"sld"`
	Tree    xmlShapeTree `xml:"cSld>spTree"`
}

type xmlShapeTree struct {
	Children []xmlShapeElem `xml:",any"`
}

type xmlShapeElem struct {
	XMLName          xml.Name
	NvSpPr           *xmlNonVisual `xml:"nvSpPr"`
	NvPicPr          *xmlNonVisual `xml:"nvPicPr"`
	NvGrpSpPr        *xmlNonVisual `xml:"nvGrpSpPr"`
	NvGraphicFramePr *xmlNonVisual `xml:"nvGraphicFramePr"`
	NvCxnSpPr        *xmlNonVisual `xml:"nvCxnSpPr"`
	TxBody           *xmlTextBody  `xml:"txBody"`
	BlipFill         *xmlBlipFill  `xml:"blipFill"`
}

type xmlNonVisual struct {
	CNvPr struct {
		Name string `xml:"name,attr"`
	} `xml:"cNvPr"`
	NvPr struct {
		VideoFile *struct{} `xml:"videoFile"`
	} `xml:"nvPr"`
}

func (nv *xmlNonVisual) name() string {
	if nv == nil {
		return ""
	}
	return nv.CNvPr.Name
}

type xmlBlipFill struct {
	Blip *struct {
		Embed string `xml:"embed,attr"`
		Link  string `xml:"link,attr"`
	} `xml:"blip"`
}

type xmlTextBody struct {
	Paragraphs []xmlParagraph `xml:"p"`
}

// xmlParagraph keeps runs, fields and breaks in document order.
type xmlParagraph struct {
	Items []xmlTextItem `xml:",any"`
}

type xmlTextItem struct {
	XMLName xml.Name
	Text    string `xml:"t"`
}

func (p xmlParagraph) text() string {
	var b strings.Builder
	for _, item := range p.Items {
		switch item.XMLName.Local {
		case "r", "fld":
			b.WriteString(item.Text)
		case "br":
			// A soft line break inside a paragraph.
			b.WriteByte('\v')
		}
	}
	return b.String()
}
