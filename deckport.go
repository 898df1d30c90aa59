// Package deckport turns PowerPoint decks into structured course lessons:
// it extracts slide text and pictures into a CourseDocument, uploads the
// document into a lesson store and an image bucket, and serves reports over
// what has been uploaded.
package deckport

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync/atomic"

	"github.com/brunobiangulo/deckport/blob"
	"github.com/brunobiangulo/deckport/extractor"
	"github.com/brunobiangulo/deckport/store"
	"github.com/brunobiangulo/deckport/uploader"
)

// Engine is the main entry point: extraction, upload and lesson management
// over one store and one bucket.
type Engine interface {
	// Extract converts one deck into <outputDir>/<title>.json plus images.
	// An empty outputDir uses the configured one.
	Extract(deckPath, outputDir string) (string, error)

	// ExtractAll converts several decks in parallel. Per-deck failures are
	// reported in the results.
	ExtractAll(ctx context.Context, decks []string, outputDir string) ([]extractor.Result, error)

	// Upload stores an extracted document as a new lesson.
	Upload(ctx context.Context, jsonPath, imagesDir string, opts ...UploadOption) (*uploader.Result, error)

	// ListLessons returns lessons newest first. limit <= 0 returns all.
	ListLessons(ctx context.Context, limit int) ([]store.Lesson, error)

	// GetLesson returns a lesson with its slides.
	GetLesson(ctx context.Context, id string) (*Lesson, error)

	// DeleteLesson removes a lesson, its slides and its images.
	DeleteLesson(ctx context.Context, id string) error

	// Store returns the underlying store for reports and diagnostics.
	Store() *store.Store

	// Bucket returns the image bucket.
	Bucket() *blob.Bucket

	Config() Config

	// Close cleanly shuts down the engine.
	Close() error
}

// Lesson is a stored lesson with its slides.
type Lesson struct {
	store.Lesson
	Slides []store.Slide `json:"slides"`
}

// UploadOption configures an upload.
type UploadOption func(*uploader.Options)

// WithModule links the uploaded lesson to a course module.
func WithModule(courseID, moduleID string) UploadOption {
	return func(o *uploader.Options) {
		o.CourseID = courseID
		o.ModuleID = moduleID
	}
}

// WithSchoolCode overrides the configured school code.
func WithSchoolCode(code string) UploadOption {
	return func(o *uploader.Options) { o.SchoolCode = code }
}

// WithSkipImages records image references with placeholder URLs instead of
// uploading the files.
func WithSkipImages() UploadOption {
	return func(o *uploader.Options) { o.SkipImages = true }
}

// WithProgress reports image progress during an upload.
func WithProgress(fn func(done, total int)) UploadOption {
	return func(o *uploader.Options) { o.Progress = fn }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	store     *store.Store
	bucket    *blob.Bucket
	extractor *extractor.Extractor
	uploader  *uploader.Uploader
	closed    atomic.Bool
}

// New opens the store and the bucket described by cfg.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	b, err := blob.Open(cfg.bucketConfig())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("opening bucket: %w", err)
	}

	slog.Debug("engine ready", "db", cfg.resolveDBPath(), "bucket", b.Root())
	return &engine{
		cfg:       cfg,
		store:     s,
		bucket:    b,
		extractor: extractor.New(),
		uploader:  uploader.New(s, b),
	}, nil
}

func (e *engine) check() error {
	if e.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (e *engine) outputDir(dir string) string {
	if dir != "" {
		return dir
	}
	if e.cfg.OutputDir != "" {
		return e.cfg.OutputDir
	}
	return "output"
}

func (e *engine) Extract(deckPath, outputDir string) (string, error) {
	return e.extractor.Extract(deckPath, e.outputDir(outputDir))
}

func (e *engine) ExtractAll(ctx context.Context, decks []string, outputDir string) ([]extractor.Result, error) {
	return e.extractor.ExtractAll(ctx, decks, e.outputDir(outputDir), e.cfg.Workers)
}

func (e *engine) Upload(ctx context.Context, jsonPath, imagesDir string, opts ...UploadOption) (*uploader.Result, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	o := uploader.Options{SchoolCode: e.cfg.schoolCode()}
	for _, fn := range opts {
		fn(&o)
	}
	return e.uploader.Upload(ctx, jsonPath, imagesDir, o)
}

func (e *engine) ListLessons(ctx context.Context, limit int) ([]store.Lesson, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return e.store.ListLessons(ctx, limit)
}

func (e *engine) GetLesson(ctx context.Context, id string) (*Lesson, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	l, err := e.store.GetLesson(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	slides, err := e.store.ListSlides(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing slides: %w", err)
	}
	return &Lesson{Lesson: *l, Slides: slides}, nil
}

// DeleteLesson removes the lesson rows first; the images are removed after,
// so a failure there leaves orphaned objects rather than dangling URLs.
func (e *engine) DeleteLesson(ctx context.Context, id string) error {
	if err := e.check(); err != nil {
		return err
	}
	l, err := e.store.GetLesson(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	if err != nil {
		return err
	}
	if err := e.store.DeleteLesson(ctx, id); err != nil {
		return fmt.Errorf("deleting lesson %s: %w", id, err)
	}

	school := l.SchoolCode
	if school == "" {
		school = e.cfg.schoolCode()
	}
	prefix := path.Dir(path.Dir(uploader.StoragePath(school, id, "x"))) + "/"
	n, err := e.bucket.DeletePrefix(prefix)
	if err != nil {
		return fmt.Errorf("deleting images of %s: %w", id, err)
	}
	slog.Info("lesson deleted", "lesson", id, "images", n)
	return nil
}

func (e *engine) Store() *store.Store { return e.store }

func (e *engine) Bucket() *blob.Bucket { return e.bucket }

func (e *engine) Config() Config { return e.cfg }

// Close shuts down the engine. Closing twice is a no-op.
func (e *engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return errors.Join(e.store.Close(), e.bucket.Close())
}
