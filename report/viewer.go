package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brunobiangulo/deckport/store"
)

type ViewerLesson struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Slides []store.Slide `json:"slides"`
}

type ViewerData struct {
	Lessons  []ViewerLesson `json:"lessons"`
	Warnings []string       `json:"warnings"`
}

// Viewer loads the given lessons for the interactive viewer. Images without
// a usable URL are dropped; unknown ids become warnings.
func Viewer(ctx context.Context, src Source, ids []string) (*ViewerData, error) {
	data := &ViewerData{Lessons: []ViewerLesson{}, Warnings: []string{}}
	for _, id := range ids {
		l, err := src.GetLesson(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			data.Warnings = append(data.Warnings, fmt.Sprintf("lesson %s not found", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("getting lesson %s: %w", id, err)
		}

		slides, err := src.ListSlides(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("listing slides of %s: %w", id, err)
		}
		for i := range slides {
			slides[i].Images = viewableImages(slides[i].Images)
		}
		data.Lessons = append(data.Lessons, ViewerLesson{ID: l.ID, Title: l.Title, Slides: slides})
	}
	return data, nil
}

func viewableImages(images []store.Image) []store.Image {
	out := make([]store.Image, 0, len(images))
	for _, img := range images {
		if img.URL == "" || strings.HasPrefix(img.URL, "PLACEHOLDER") {
			continue
		}
		out = append(out, img)
	}
	return out
}

// WriteViewerHTML renders the single-page viewer.
func WriteViewerHTML(w io.Writer, data *ViewerData, generated time.Time) error {
	return templates.ExecuteTemplate(w, "viewer.html.tmpl", struct {
		Generated string
		Lessons   []ViewerLesson
	}{generated.Format("2006-01-02 15:04:05"), data.Lessons})
}
