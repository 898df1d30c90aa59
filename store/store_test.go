//go:build cgo

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != migrations[len(migrations)-1].version {
		t.Errorf("expected schema version %d, got %d", migrations[len(migrations)-1].version, v)
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()

	var applied int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d recorded migrations, got %d", len(migrations), applied)
	}
}

// ---------------------------------------------------------------------------
// Lessons
// ---------------------------------------------------------------------------

func sampleLesson(id, title string) Lesson {
	return Lesson{
		ID:               id,
		Title:            title,
		Code:             "DMT_" + title,
		SchoolCode:       "DMT",
		IsLessonMaterial: true,
		CreatedAt:        time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func sampleSlides() []Slide {
	return []Slide{
		{SlideNumber: 1, Title: "Intro", Content: []string{}, Images: []Image{
			{Filename: "L_slide_1_a.png", URL: "http://x/a", StoragePath: "schools/DMT/lessons/L/images/L_slide_1_a.png"},
			{Filename: "L_slide_1_b.png", URL: "http://x/b", StoragePath: "schools/DMT/lessons/L/images/L_slide_1_b.png"},
		}},
		{SlideNumber: 2, Title: "Summary", Content: []string{"Details", "Más"}},
	}
}

func TestPutAndGetLesson(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := sampleLesson("LES_20240301100000_aaaa", "Lesson1")
	if err := s.PutLesson(ctx, l, sampleSlides()); err != nil {
		t.Fatalf("putting lesson: %v", err)
	}

	got, err := s.GetLesson(ctx, l.ID)
	if err != nil {
		t.Fatalf("getting lesson: %v", err)
	}
	if got.Title != "Lesson1" || got.Code != "DMT_Lesson1" || got.SchoolCode != "DMT" {
		t.Errorf("unexpected lesson %+v", got)
	}
	if !got.IsLessonMaterial || got.IsCaseStudy || got.IsAdditionalMaterial {
		t.Errorf("unexpected flags %+v", got)
	}
	if got.ModuleID != "" {
		t.Errorf("expected no module, got %q", got.ModuleID)
	}
	if !got.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("created at = %v, want %v", got.CreatedAt, l.CreatedAt)
	}

	slides, err := s.ListSlides(ctx, l.ID)
	if err != nil {
		t.Fatalf("listing slides: %v", err)
	}
	if len(slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(slides))
	}
	if slides[0].ID != "SLIDE_1" || slides[0].Title != "Intro" || len(slides[0].Images) != 2 {
		t.Errorf("slide 1 = %+v", slides[0])
	}
	if slides[0].Images[0].Filename != "L_slide_1_a.png" || slides[0].Images[1].Filename != "L_slide_1_b.png" {
		t.Errorf("image order lost: %+v", slides[0].Images)
	}
	if fmt.Sprint(slides[1].Content) != "[Details Más]" {
		t.Errorf("slide 2 content = %v", slides[1].Content)
	}
	if slides[1].Images == nil {
		t.Error("expected empty, non-nil images on slide 2")
	}

	nSlides, nImages, err := s.LessonCounts(ctx, l.ID)
	if err != nil {
		t.Fatal(err)
	}
	if nSlides != 2 || nImages != 2 {
		t.Errorf("counts = %d slides, %d images", nSlides, nImages)
	}
}

func TestGetLessonNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetLesson(context.Background(), "LES_missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestPutLessonDuplicateIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := sampleLesson("LES_1", "A")
	if err := s.PutLesson(ctx, l, sampleSlides()); err != nil {
		t.Fatal(err)
	}
	if err := s.PutLesson(ctx, l, sampleSlides()); err == nil {
		t.Fatal("expected an error for a duplicate lesson id")
	}

	// Duplicate slide numbers fail mid-transaction; nothing of the lesson
	// may remain.
	bad := sampleLesson("LES_2", "B")
	dup := []Slide{{SlideNumber: 1}, {SlideNumber: 1}}
	if err := s.PutLesson(ctx, bad, dup); err == nil {
		t.Fatal("expected an error for duplicate slide numbers")
	}
	if _, err := s.GetLesson(ctx, "LES_2"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("partial lesson left behind: %v", err)
	}
}

func TestListAndFindLessons(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, l := range []Lesson{
		sampleLesson("LES_20240101000000_a", "Alpha"),
		sampleLesson("LES_20240301000000_b", "Beta"),
		sampleLesson("LES_20240201000000_c", "Alpha"),
	} {
		if err := s.PutLesson(ctx, l, nil); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListLessons(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, l := range all {
		ids = append(ids, l.ID)
	}
	want := "[LES_20240301000000_b LES_20240201000000_c LES_20240101000000_a]"
	if fmt.Sprint(ids) != want {
		t.Errorf("order = %v, want %s", ids, want)
	}

	limited, err := s.ListLessons(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 lessons, got %d", len(limited))
	}

	alpha, err := s.FindLessonsByTitle(ctx, "Alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(alpha) != 2 || alpha[0].ID != "LES_20240201000000_c" {
		t.Errorf("find Alpha = %+v", alpha)
	}

	none, err := s.FindLessonsByTitle(ctx, "Gamma", 1)
	if err != nil {
		t.Fatal(err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected an empty, non-nil result, got %#v", none)
	}
}

func TestDeleteLessonCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	l := sampleLesson("LES_1", "A")
	if err := s.PutLesson(ctx, l, sampleSlides()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertModule(ctx, Module{ID: "MOD_1", CourseID: "C1", Title: "M", LessonIDs: []string{"LES_1"}}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteLesson(ctx, "LES_1"); err != nil {
		t.Fatalf("deleting lesson: %v", err)
	}

	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.Lessons != 0 || c.Slides != 0 || c.Images != 0 {
		t.Errorf("rows left after delete: %+v", c)
	}
	m, err := s.GetModule(ctx, "MOD_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.LessonIDs) != 0 {
		t.Errorf("module still links deleted lesson: %v", m.LessonIDs)
	}

	if err := s.DeleteLesson(ctx, "LES_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete: expected sql.ErrNoRows, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Modules
// ---------------------------------------------------------------------------

func TestModules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"LES_1", "LES_2"} {
		if err := s.PutLesson(ctx, sampleLesson(id, id), nil); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.AppendModuleLesson(ctx, "MOD_X", "LES_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing module: expected sql.ErrNoRows, got %v", err)
	}

	if err := s.UpsertModule(ctx, Module{ID: "MOD_1", CourseID: "C1", Title: "Basics"}); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"LES_2", "LES_1", "LES_2"} {
		if err := s.AppendModuleLesson(ctx, "MOD_1", id); err != nil {
			t.Fatalf("appending %s: %v", id, err)
		}
	}

	m, err := s.GetModule(ctx, "MOD_1")
	if err != nil {
		t.Fatal(err)
	}
	if m.CourseID != "C1" || m.Title != "Basics" {
		t.Errorf("module = %+v", m)
	}
	if fmt.Sprint(m.LessonIDs) != "[LES_2 LES_1]" {
		t.Errorf("lessons = %v, want [LES_2 LES_1]", m.LessonIDs)
	}

	// Upsert without a lesson list leaves links alone.
	if err := s.UpsertModule(ctx, Module{ID: "MOD_1", CourseID: "C1", Title: "Renamed"}); err != nil {
		t.Fatal(err)
	}
	m, err = s.GetModule(ctx, "MOD_1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Title != "Renamed" || len(m.LessonIDs) != 2 {
		t.Errorf("after rename: %+v", m)
	}

	if _, err := s.GetModule(ctx, "MOD_X"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

func TestStructureAndCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutLesson(ctx, sampleLesson("LES_1", "A"), sampleSlides()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertModule(ctx, Module{ID: "MOD_1"}); err != nil {
		t.Fatal(err)
	}

	cols, err := s.Structure(ctx, 5)
	if err != nil {
		t.Fatalf("structure: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "lessons" || cols[1].Name != "modules" {
		t.Fatalf("collections = %+v", cols)
	}
	lessons := cols[0]
	if lessons.Count != 1 || fmt.Sprint(lessons.SampleIDs) != "[LES_1]" {
		t.Errorf("lessons = %+v", lessons)
	}
	if len(lessons.SubCollections) != 1 || lessons.SubCollections[0].Name != "slides" {
		t.Fatalf("sub-collections = %+v", lessons.SubCollections)
	}
	if sc := lessons.SubCollections[0]; sc.Count != 2 || fmt.Sprint(sc.SampleIDs) != "[SLIDE_1 SLIDE_2]" {
		t.Errorf("slides = %+v", sc)
	}

	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if *c != (Counts{Lessons: 1, Slides: 2, Images: 2, Modules: 1}) {
		t.Errorf("counts = %+v", c)
	}
}
