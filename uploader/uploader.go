// Package uploader stores an extracted CourseDocument: images go to the
// bucket, the lesson and its slides go to the document store.
package uploader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/deckport/extractor"
	"github.com/brunobiangulo/deckport/store"
)

// DefaultSchoolCode is used when Options.SchoolCode is empty.
const DefaultSchoolCode = "DMT"

// LessonStore is the part of the document store the uploader writes to.
type LessonStore interface {
	PutLesson(ctx context.Context, l store.Lesson, slides []store.Slide) error
	AppendModuleLesson(ctx context.Context, moduleID, lessonID string) error
}

// Bucket is the part of the blob store the uploader writes to.
type Bucket interface {
	Upload(key, srcPath string) error
	MakePublic(key string) error
	PublicURL(key string) string
}

// Options controls one upload.
type Options struct {
	CourseID   string
	ModuleID   string
	SchoolCode string

	// SkipImages records image references without uploading; each image
	// gets a placeholder URL.
	SkipImages bool

	// Progress is called after each image with the number handled so far
	// and the total number of images in the document.
	Progress func(done, total int)
}

// Result summarises an upload.
type Result struct {
	LessonID       string   `json:"lessonId"`
	Title          string   `json:"title"`
	Slides         int      `json:"slides"`
	ImagesUploaded int      `json:"imagesUploaded"`
	ImagesMissing  int      `json:"imagesMissing"`
	ModuleLinked   bool     `json:"moduleLinked"`
	Warnings       []string `json:"warnings"`
}

type Uploader struct {
	store  LessonStore
	bucket Bucket
	now    func() time.Time
	token  func() string
}

// New returns an Uploader. bucket may be nil when every upload sets
// SkipImages.
func New(s LessonStore, b Bucket) *Uploader {
	return &Uploader{
		store:  s,
		bucket: b,
		now:    time.Now,
		token:  func() string { return uuid.New().String() },
	}
}

// LessonID builds a lesson id from the upload time and a random token:
// LES_<yyyymmddhhmmss>_<first 18 characters of token>.
func LessonID(t time.Time, token string) string {
	if len(token) > 18 {
		token = token[:18]
	}
	return fmt.Sprintf("LES_%s_%s", t.Format("20060102150405"), token)
}

// StoragePath is the bucket key of a lesson image.
func StoragePath(schoolCode, lessonID, filename string) string {
	return fmt.Sprintf("schools/%s/lessons/%s/images/%s", schoolCode, lessonID, filename)
}

// PlaceholderURL is recorded for images that were not uploaded.
func PlaceholderURL(filename string) string {
	return "PLACEHOLDER_URL_FOR_" + filename
}

// Upload reads the document at jsonPath and stores it. imagesDir defaults to
// the images directory next to the JSON file.
func (u *Uploader) Upload(ctx context.Context, jsonPath, imagesDir string, opts Options) (*Result, error) {
	doc, err := extractor.ReadDocument(jsonPath)
	if err != nil {
		return nil, err
	}
	if imagesDir == "" {
		imagesDir = filepath.Join(filepath.Dir(jsonPath), extractor.ImagesDir)
	}
	if opts.SchoolCode == "" {
		opts.SchoolCode = DefaultSchoolCode
	}
	if !opts.SkipImages && u.bucket == nil {
		return nil, errors.New("uploader: no bucket configured")
	}

	lesson := store.Lesson{
		ID:               LessonID(u.now().UTC(), u.token()),
		Title:            doc.Title,
		Code:             opts.SchoolCode + "_" + doc.Title,
		SchoolCode:       opts.SchoolCode,
		IsLessonMaterial: true,
		ModuleID:         opts.ModuleID,
		CreatedAt:        u.now().UTC(),
	}
	res := &Result{LessonID: lesson.ID, Title: doc.Title, Slides: len(doc.Slides), Warnings: []string{}}

	total := doc.ImageCount()
	done := 0
	slides := make([]store.Slide, 0, len(doc.Slides))

	for _, sl := range doc.Slides {
		rec := store.Slide{
			ID:          store.SlideID(sl.SlideNumber),
			SlideNumber: sl.SlideNumber,
			Title:       sl.Title,
			Content:     sl.Content,
			Images:      []store.Image{},
		}

		for _, img := range sl.Images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			local := filepath.Join(imagesDir, img.Filename)
			if _, err := os.Stat(local); err != nil {
				slog.Warn("image file missing, skipped", "file", local, "error", err)
				res.ImagesMissing++
				res.Warnings = append(res.Warnings, fmt.Sprintf("image %s not found in %s", img.Filename, imagesDir))
			} else {
				key := StoragePath(opts.SchoolCode, lesson.ID, img.Filename)
				url := PlaceholderURL(img.Filename)
				if !opts.SkipImages {
					if err := u.bucket.Upload(key, local); err != nil {
						return nil, fmt.Errorf("uploading %s: %w", img.Filename, err)
					}
					if err := u.bucket.MakePublic(key); err != nil {
						return nil, fmt.Errorf("publishing %s: %w", key, err)
					}
					url = u.bucket.PublicURL(key)
					res.ImagesUploaded++
					slog.Debug("image uploaded", "key", key)
				}
				rec.Images = append(rec.Images, store.Image{Filename: img.Filename, URL: url, StoragePath: key})
			}

			done++
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}
		slides = append(slides, rec)
	}

	if err := u.store.PutLesson(ctx, lesson, slides); err != nil {
		return nil, fmt.Errorf("storing lesson %s: %w", lesson.ID, err)
	}
	slog.Info("lesson uploaded", "lesson", lesson.ID, "title", lesson.Title,
		"slides", res.Slides, "images", res.ImagesUploaded, "skipImages", opts.SkipImages)

	if opts.CourseID != "" && opts.ModuleID != "" {
		err := u.store.AppendModuleLesson(ctx, opts.ModuleID, lesson.ID)
		switch {
		case err == nil:
			res.ModuleLinked = true
			slog.Info("lesson linked to module", "lesson", lesson.ID, "course", opts.CourseID, "module", opts.ModuleID)
		case errors.Is(err, sql.ErrNoRows):
			slog.Warn("module not found, lesson not linked", "module", opts.ModuleID)
			res.Warnings = append(res.Warnings, fmt.Sprintf("module %s not found", opts.ModuleID))
		default:
			return res, fmt.Errorf("linking lesson %s to module %s: %w", lesson.ID, opts.ModuleID, err)
		}
	}

	return res, nil
}
