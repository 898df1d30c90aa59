package report

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/brunobiangulo/deckport/store"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html.tmpl"))

const (
	// CatalogLessons is how many of the most recent lessons the catalog shows.
	CatalogLessons = 10
	// PreviewSlides is how many leading slides each catalog entry previews.
	PreviewSlides = 3

	previewTitleMax = 100
)

type CatalogLesson struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Code        string         `json:"code"`
	UploadDate  string         `json:"-"`
	SlidesCount int            `json:"slides_count"`
	ImagesCount int            `json:"images_count"`
	Preview     []PreviewSlide `json:"preview"`
}

type PreviewSlide struct {
	SlideNumber int           `json:"slideNumber"`
	Title       string        `json:"title"`
	ImageCount  int           `json:"imageCount"`
	ImageURLs   []string      `json:"imageUrls"`
	Images      []store.Image `json:"-"`
}

// Catalog collects the most recent lessons with a preview of their first
// slides. ImagesCount covers every slide, not just the preview.
func Catalog(ctx context.Context, src Source, limit int) ([]CatalogLesson, error) {
	if limit <= 0 {
		limit = CatalogLessons
	}
	lessons, err := src.ListLessons(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}

	out := make([]CatalogLesson, 0, len(lessons))
	for _, l := range lessons {
		slides, err := src.ListSlides(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("listing slides of %s: %w", l.ID, err)
		}

		entry := CatalogLesson{
			ID:          l.ID,
			Title:       l.Title,
			Code:        l.Code,
			UploadDate:  UploadDate(l.ID),
			SlidesCount: len(slides),
			Preview:     []PreviewSlide{},
		}
		for i, sl := range slides {
			entry.ImagesCount += len(sl.Images)
			if i >= PreviewSlides {
				continue
			}
			p := PreviewSlide{
				SlideNumber: sl.SlideNumber,
				Title:       truncate(sl.Title, previewTitleMax),
				ImageCount:  len(sl.Images),
				ImageURLs:   make([]string, 0, len(sl.Images)),
				Images:      sl.Images,
			}
			for _, img := range sl.Images {
				p.ImageURLs = append(p.ImageURLs, img.URL)
			}
			entry.Preview = append(entry.Preview, p)
		}
		if entry.Title == "" {
			entry.Title = "Unnamed Lesson"
		}
		out = append(out, entry)
	}
	return out, nil
}

// UploadDate formats the timestamp embedded in a lesson id as yyyy-mm-dd.
// Ids without one yield "".
func UploadDate(lessonID string) string {
	parts := strings.Split(lessonID, "_")
	if len(parts) < 2 || len(parts[1]) < 8 {
		return ""
	}
	t, err := time.Parse("20060102", parts[1][:8])
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// WriteCatalogHTML renders the catalog page.
func WriteCatalogHTML(w io.Writer, lessons []CatalogLesson, generated time.Time) error {
	return templates.ExecuteTemplate(w, "catalog.html.tmpl", struct {
		Generated string
		Lessons   []CatalogLesson
	}{generated.Format("2006-01-02 15:04:05"), lessons})
}

// WriteCatalogJSON writes the catalog as indented JSON.
func WriteCatalogJSON(w io.Writer, lessons []CatalogLesson) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(lessons)
}
