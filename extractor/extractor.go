// Package extractor turns a slide deck into a CourseDocument JSON file plus
// an images directory holding every embedded picture.
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/brunobiangulo/deckport/parser"
)

var (
	// ErrNotFound is returned when the deck path does not exist or cannot be
	// read.
	ErrNotFound = errors.New("extractor: deck not found")

	// ErrMalformedInput is returned when the file is not a valid slide deck
	// container.
	ErrMalformedInput = errors.New("extractor: malformed deck")

	// ErrFilesystem wraps failures creating directories or writing output.
	ErrFilesystem = errors.New("extractor: filesystem error")
)

// ImagesDir is the subdirectory of the output directory holding extracted
// pictures. ImageRecord paths are relative to the output directory.
const ImagesDir = "images"

// CourseDocument is the storage-ready form of one deck.
type CourseDocument struct {
	Title  string        `json:"title"`
	Slides []SlideRecord `json:"slides"`
}

// ImageCount returns the number of images across all slides.
func (d *CourseDocument) ImageCount() int {
	n := 0
	for _, s := range d.Slides {
		n += len(s.Images)
	}
	return n
}

// SlideRecord is one slide. Title is the first non-empty text shape; every
// later non-empty text shape lands in Content.
type SlideRecord struct {
	SlideNumber int           `json:"slideNumber"`
	Title       string        `json:"title"`
	Content     []string      `json:"content"`
	Images      []ImageRecord `json:"images"`
}

type ImageRecord struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
}

// Extractor converts decks. The zero value is not usable; call New.
type Extractor struct {
	newToken func() string
	parse    func(path string) (*parser.Deck, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTokenSource replaces the random UUID used to make image filenames
// unique. The source must not repeat within a run.
func WithTokenSource(next func() string) Option {
	return func(e *Extractor) { e.newToken = next }
}

func New(opts ...Option) *Extractor {
	e := &Extractor{
		newToken: func() string { return uuid.New().String() },
		parse:    parser.Parse,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract converts the deck at deckPath with a default Extractor.
func Extract(deckPath, outputDir string) (string, error) {
	return New().Extract(deckPath, outputDir)
}

// pendingImage is a picture waiting to be written once the whole deck has
// been read.
type pendingImage struct {
	filename string
	data     []byte
}

// Extract reads the deck, writes every picture to outputDir/images and the
// document to outputDir/<title>.json, and returns the JSON path.
//
// The deck is read and validated completely before anything is written, so
// a missing or malformed deck leaves no output behind. A filesystem failure
// part-way through may leave some images on disk but never a partial JSON
// file.
func (e *Extractor) Extract(deckPath, outputDir string) (string, error) {
	doc, images, err := e.build(deckPath)
	if err != nil {
		return "", err
	}

	imagesDir := filepath.Join(outputDir, ImagesDir)
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating %s: %w", ErrFilesystem, imagesDir, err)
	}

	for _, img := range images {
		dst := filepath.Join(imagesDir, img.filename)
		if err := os.WriteFile(dst, img.data, 0o644); err != nil {
			return "", fmt.Errorf("%w: writing image %s: %w", ErrFilesystem, img.filename, err)
		}
	}

	jsonPath := filepath.Join(outputDir, doc.Title+".json")
	if err := writeDocument(jsonPath, doc); err != nil {
		return "", err
	}

	slog.Info("deck extracted", "deck", deckPath, "slides", len(doc.Slides), "images", len(images), "output", jsonPath)
	return jsonPath, nil
}

// Document parses the deck and builds its CourseDocument without writing
// anything. Filenames are generated as Extract would.
func (e *Extractor) Document(deckPath string) (*CourseDocument, error) {
	doc, _, err := e.build(deckPath)
	return doc, err
}

func (e *Extractor) build(deckPath string) (*CourseDocument, []pendingImage, error) {
	info, err := os.Stat(deckPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrNotFound, deckPath, err)
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, deckPath)
	}

	deck, err := e.parse(deckPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	title := DeckTitle(deckPath)
	doc := &CourseDocument{Title: title, Slides: make([]SlideRecord, 0, len(deck.Slides))}
	var images []pendingImage

	for i, slide := range deck.Slides {
		acc := newSlideAccumulator(i + 1)
		for _, shape := range slide.Shapes {
			switch s := shape.(type) {
			case parser.TextShape:
				acc.addText(s.Text())
			case parser.PictureShape:
				filename := fmt.Sprintf("%s_slide_%d_%s.png", title, acc.record.SlideNumber, e.newToken())
				acc.addImage(filename)
				images = append(images, pendingImage{filename: filename, data: s.Data})
			}
		}
		doc.Slides = append(doc.Slides, acc.record)
	}

	return doc, images, nil
}

// slideAccumulator latches the first non-empty text as the slide title and
// collects the rest as content.
type slideAccumulator struct {
	record SlideRecord
	titled bool
}

func newSlideAccumulator(number int) *slideAccumulator {
	return &slideAccumulator{record: SlideRecord{
		SlideNumber: number,
		Content:     []string{},
		Images:      []ImageRecord{},
	}}
}

func (a *slideAccumulator) addText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !a.titled {
		a.record.Title = text
		a.titled = true
		return
	}
	a.record.Content = append(a.record.Content, text)
}

func (a *slideAccumulator) addImage(filename string) {
	a.record.Images = append(a.record.Images, ImageRecord{
		Filename: filename,
		Path:     ImagesDir + "/" + filename,
	})
}

// DeckTitle derives the document title from a deck path: the base name up to
// its first dot, so "Week 1.final.pptx" becomes "Week 1". A base name that
// starts with a dot falls back to the name without its last extension.
func DeckTitle(deckPath string) string {
	base := filepath.Base(deckPath)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	if title := strings.TrimLeft(strings.TrimSuffix(base, filepath.Ext(base)), "."); title != "" {
		return title
	}
	return "untitled"
}

// writeDocument encodes doc next to its final path and renames it into
// place, so readers never see a partial file.
func writeDocument(jsonPath string, doc *CourseDocument) error {
	dir := filepath.Dir(jsonPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(jsonPath)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in %s: %w", ErrFilesystem, dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: encoding %s: %w", ErrFilesystem, jsonPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrFilesystem, tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrFilesystem, tmpPath, err)
	}
	if err := os.Rename(tmpPath, jsonPath); err != nil {
		return fmt.Errorf("%w: renaming to %s: %w", ErrFilesystem, jsonPath, err)
	}
	return nil
}

// ReadDocument loads a CourseDocument written by Extract.
func ReadDocument(jsonPath string) (*CourseDocument, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, jsonPath, err)
	}
	var doc CourseDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrMalformedInput, jsonPath, err)
	}
	if doc.Slides == nil {
		doc.Slides = []SlideRecord{}
	}
	return &doc, nil
}
