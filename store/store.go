package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Lesson represents a row in the lessons table. JSON names follow the
// document layout the reports and the HTTP API expose.
type Lesson struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Code                 string    `json:"code"`
	SchoolCode           string    `json:"schoolCode"`
	Sortcode             int       `json:"sortcode"`
	IsLessonMaterial     bool      `json:"isLessonMaterial"`
	IsCaseStudy          bool      `json:"isCaseStudy"`
	IsAdditionalMaterial bool      `json:"isAdditionalMaterial"`
	ModuleID             string    `json:"moduleId,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Slide is one slide of a lesson with its images in order.
type Slide struct {
	ID          string   `json:"id"`
	LessonID    string   `json:"-"`
	SlideNumber int      `json:"slideNumber"`
	Title       string   `json:"title"`
	Content     []string `json:"content"`
	Images      []Image  `json:"images"`
}

type Image struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	StoragePath string `json:"storagePath"`
}

// Module groups lessons of a course in order.
type Module struct {
	ID        string   `json:"id"`
	CourseID  string   `json:"courseId"`
	Title     string   `json:"title"`
	LessonIDs []string `json:"lessons"`
}

// Field names of each collection as exposed in JSON.
var (
	lessonFields = []string{"id", "title", "code", "schoolCode", "sortcode", "isLessonMaterial",
		"isCaseStudy", "isAdditionalMaterial", "moduleId", "createdAt"}
	slideFields  = []string{"id", "slideNumber", "title", "content", "images"}
	moduleFields = []string{"id", "courseId", "title", "lessons"}
)

// Store wraps the SQLite database holding lessons, slides and modules.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Lesson operations ---

// PutLesson inserts a lesson and all of its slides and images in one
// transaction. A lesson id that already exists is an error.
func (s *Store) PutLesson(ctx context.Context, l Lesson, slides []Slide) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lessons (id, title, code, school_code, sortcode, is_lesson_material,
				is_case_study, is_additional_material, module_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, l.ID, l.Title, l.Code, l.SchoolCode, l.Sortcode, l.IsLessonMaterial,
			l.IsCaseStudy, l.IsAdditionalMaterial, nullString(l.ModuleID), l.CreatedAt); err != nil {
			return fmt.Errorf("inserting lesson %s: %w", l.ID, err)
		}

		slideStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO slides (lesson_id, slide_number, id, title, content) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer slideStmt.Close()

		imageStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO slide_images (lesson_id, slide_number, position, filename, url, storage_path)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer imageStmt.Close()

		for _, sl := range slides {
			content := sl.Content
			if content == nil {
				content = []string{}
			}
			contentJSON, err := json.Marshal(content)
			if err != nil {
				return fmt.Errorf("encoding content of slide %d: %w", sl.SlideNumber, err)
			}
			id := sl.ID
			if id == "" {
				id = SlideID(sl.SlideNumber)
			}
			if _, err := slideStmt.ExecContext(ctx, l.ID, sl.SlideNumber, id, sl.Title, string(contentJSON)); err != nil {
				return fmt.Errorf("inserting slide %d: %w", sl.SlideNumber, err)
			}
			for pos, img := range sl.Images {
				if _, err := imageStmt.ExecContext(ctx, l.ID, sl.SlideNumber, pos,
					img.Filename, img.URL, img.StoragePath); err != nil {
					return fmt.Errorf("inserting image %s: %w", img.Filename, err)
				}
			}
		}
		return nil
	})
}

// SlideID is the document id of the n-th slide of a lesson.
func SlideID(n int) string { return fmt.Sprintf("SLIDE_%d", n) }

const lessonColumns = `id, title, code, school_code, sortcode, is_lesson_material,
	is_case_study, is_additional_material, module_id, created_at`

func scanLesson(row interface{ Scan(...any) error }) (Lesson, error) {
	var l Lesson
	var moduleID sql.NullString
	err := row.Scan(&l.ID, &l.Title, &l.Code, &l.SchoolCode, &l.Sortcode, &l.IsLessonMaterial,
		&l.IsCaseStudy, &l.IsAdditionalMaterial, &moduleID, &l.CreatedAt)
	l.ModuleID = moduleID.String
	return l, err
}

// GetLesson retrieves a lesson by id. It returns sql.ErrNoRows when the
// lesson does not exist.
func (s *Store) GetLesson(ctx context.Context, id string) (*Lesson, error) {
	l, err := scanLesson(s.db.QueryRowContext(ctx,
		"SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLessons returns lessons newest first. Lesson ids embed their upload
// time, so id order is upload order. A limit of zero or less returns all.
func (s *Store) ListLessons(ctx context.Context, limit int) ([]Lesson, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryLessons(ctx, "SELECT "+lessonColumns+" FROM lessons ORDER BY id DESC LIMIT ?", limit)
}

// FindLessonsByTitle returns lessons with exactly this title, newest first.
func (s *Store) FindLessonsByTitle(ctx context.Context, title string, limit int) ([]Lesson, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryLessons(ctx,
		"SELECT "+lessonColumns+" FROM lessons WHERE title = ? ORDER BY id DESC LIMIT ?", title, limit)
}

func (s *Store) queryLessons(ctx context.Context, query string, args ...any) ([]Lesson, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lessons := []Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// ListSlides returns the slides of a lesson ordered by slide number, each
// with its images.
func (s *Store) ListSlides(ctx context.Context, lessonID string) ([]Slide, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slide_number, id, title, content FROM slides
		WHERE lesson_id = ? ORDER BY slide_number
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slides := []Slide{}
	index := map[int]int{}
	for rows.Next() {
		sl := Slide{LessonID: lessonID, Images: []Image{}}
		var content string
		if err := rows.Scan(&sl.SlideNumber, &sl.ID, &sl.Title, &content); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &sl.Content); err != nil {
			return nil, fmt.Errorf("decoding content of slide %d: %w", sl.SlideNumber, err)
		}
		if sl.Content == nil {
			sl.Content = []string{}
		}
		index[sl.SlideNumber] = len(slides)
		slides = append(slides, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	imgRows, err := s.db.QueryContext(ctx, `
		SELECT slide_number, filename, url, storage_path FROM slide_images
		WHERE lesson_id = ? ORDER BY slide_number, position
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer imgRows.Close()

	for imgRows.Next() {
		var n int
		var img Image
		if err := imgRows.Scan(&n, &img.Filename, &img.URL, &img.StoragePath); err != nil {
			return nil, err
		}
		if i, ok := index[n]; ok {
			slides[i].Images = append(slides[i].Images, img)
		}
	}
	return slides, imgRows.Err()
}

// LessonCounts returns the number of slides and images of a lesson.
func (s *Store) LessonCounts(ctx context.Context, lessonID string) (slides, images int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM slides WHERE lesson_id = ?),
			(SELECT COUNT(*) FROM slide_images WHERE lesson_id = ?)
	`, lessonID, lessonID).Scan(&slides, &images)
	return slides, images, err
}

// DeleteLesson removes a lesson and cascades to its slides, images and
// module links. It returns sql.ErrNoRows when the lesson does not exist.
func (s *Store) DeleteLesson(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM lessons WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// --- Module operations ---

// UpsertModule inserts or updates a module. When LessonIDs is non-nil it
// replaces the module's lesson list.
func (s *Store) UpsertModule(ctx context.Context, m Module) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO modules (id, course_id, title) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				course_id = excluded.course_id,
				title = excluded.title
		`, m.ID, m.CourseID, m.Title); err != nil {
			return fmt.Errorf("upserting module %s: %w", m.ID, err)
		}
		if m.LessonIDs == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM module_lessons WHERE module_id = ?", m.ID); err != nil {
			return err
		}
		for pos, lessonID := range m.LessonIDs {
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO module_lessons (module_id, lesson_id, position) VALUES (?, ?, ?)",
				m.ID, lessonID, pos); err != nil {
				return fmt.Errorf("linking lesson %s: %w", lessonID, err)
			}
		}
		return nil
	})
}

// GetModule retrieves a module with its lessons in order. It returns
// sql.ErrNoRows when the module does not exist.
func (s *Store) GetModule(ctx context.Context, id string) (*Module, error) {
	m := &Module{LessonIDs: []string{}}
	if err := s.db.QueryRowContext(ctx,
		"SELECT id, course_id, title FROM modules WHERE id = ?", id,
	).Scan(&m.ID, &m.CourseID, &m.Title); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT lesson_id FROM module_lessons WHERE module_id = ? ORDER BY position", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var lessonID string
		if err := rows.Scan(&lessonID); err != nil {
			return nil, err
		}
		m.LessonIDs = append(m.LessonIDs, lessonID)
	}
	return m, rows.Err()
}

// AppendModuleLesson adds a lesson to the end of a module's lesson list. A
// lesson already in the list keeps its position. It returns sql.ErrNoRows
// when the module does not exist.
func (s *Store) AppendModuleLesson(ctx context.Context, moduleID, lessonID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM modules WHERE id = ?", moduleID).Scan(&exists); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO module_lessons (module_id, lesson_id, position)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM module_lessons WHERE module_id = ?))
		`, moduleID, lessonID, moduleID)
		return err
	})
}

// --- Introspection ---

// Collection describes one collection of the store for structure reports.
type Collection struct {
	Name           string       `json:"name"`
	Count          int          `json:"count"`
	Fields         []string     `json:"fields"`
	SampleIDs      []string     `json:"sampleIds"`
	SubCollections []Collection `json:"subCollections,omitempty"`
}

// Structure describes the top-level collections with up to sample document
// ids each. Slide sub-collection counts cover the sampled lessons only.
func (s *Store) Structure(ctx context.Context, sample int) ([]Collection, error) {
	if sample <= 0 {
		sample = 3
	}

	lessons, err := s.ListLessons(ctx, sample)
	if err != nil {
		return nil, fmt.Errorf("sampling lessons: %w", err)
	}
	counts, err := s.Counts(ctx)
	if err != nil {
		return nil, err
	}

	lessonCol := Collection{Name: "lessons", Count: counts.Lessons, Fields: lessonFields, SampleIDs: []string{}}
	slideCol := Collection{Name: "slides", Fields: slideFields, SampleIDs: []string{}}
	for _, l := range lessons {
		lessonCol.SampleIDs = append(lessonCol.SampleIDs, l.ID)
		n, _, err := s.LessonCounts(ctx, l.ID)
		if err != nil {
			return nil, err
		}
		slideCol.Count += n
	}
	if len(lessons) > 0 {
		slides, err := s.ListSlides(ctx, lessons[0].ID)
		if err != nil {
			return nil, err
		}
		for i, sl := range slides {
			if i == sample {
				break
			}
			slideCol.SampleIDs = append(slideCol.SampleIDs, sl.ID)
		}
	}
	lessonCol.SubCollections = []Collection{slideCol}

	moduleCol := Collection{Name: "modules", Count: counts.Modules, Fields: moduleFields, SampleIDs: []string{}}
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM modules ORDER BY id LIMIT ?", sample)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		moduleCol.SampleIDs = append(moduleCol.SampleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return []Collection{lessonCol, moduleCol}, nil
}

// Counts holds row counts per table.
type Counts struct {
	Lessons int `json:"lessons"`
	Slides  int `json:"slides"`
	Images  int `json:"images"`
	Modules int `json:"modules"`
}

// Counts returns the number of lessons, slides, images and modules.
func (s *Store) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM lessons", &c.Lessons},
		{"SELECT COUNT(*) FROM slides", &c.Slides},
		{"SELECT COUNT(*) FROM slide_images", &c.Images},
		{"SELECT COUNT(*) FROM modules", &c.Modules},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", strings.TrimPrefix(q.query, "SELECT COUNT(*) FROM "), err)
		}
	}
	return c, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
