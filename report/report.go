// Package report builds audits and student-facing views of the uploaded
// lessons: presence checks, image audits, structure dumps, bucket listings,
// the lesson catalog, the interactive viewer and the XLSX inventory.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/brunobiangulo/deckport/blob"
	"github.com/brunobiangulo/deckport/store"
)

// Source is the read side of the document store.
type Source interface {
	ListLessons(ctx context.Context, limit int) ([]store.Lesson, error)
	FindLessonsByTitle(ctx context.Context, title string, limit int) ([]store.Lesson, error)
	GetLesson(ctx context.Context, id string) (*store.Lesson, error)
	ListSlides(ctx context.Context, lessonID string) ([]store.Slide, error)
	Structure(ctx context.Context, sample int) ([]store.Collection, error)
}

// Objects is the read side of the bucket.
type Objects interface {
	Name() string
	Root() string
	Exists(key string) (bool, error)
	List(prefix string) ([]blob.ObjectInfo, error)
	SignedURL(key string, ttl time.Duration) (string, error)
}

// --- Lesson presence ---

type LessonRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type PresenceCheck struct {
	Title    string `json:"title"`
	Found    bool   `json:"found"`
	LessonID string `json:"lessonId,omitempty"`
	Slides   int    `json:"slides"`
}

type PresenceReport struct {
	Lessons []LessonRef     `json:"lessons"`
	Checks  []PresenceCheck `json:"checks"`
}

// LessonPresence lists every lesson and reports, for each title, whether a
// lesson with that title exists. When several do, the most recent wins.
func LessonPresence(ctx context.Context, src Source, titles []string) (*PresenceReport, error) {
	lessons, err := src.ListLessons(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("listing lessons: %w", err)
	}

	r := &PresenceReport{Lessons: make([]LessonRef, 0, len(lessons)), Checks: make([]PresenceCheck, 0, len(titles))}
	for _, l := range lessons {
		r.Lessons = append(r.Lessons, LessonRef{ID: l.ID, Title: l.Title})
	}

	for _, title := range titles {
		check := PresenceCheck{Title: title}
		found, err := src.FindLessonsByTitle(ctx, title, 1)
		if err != nil {
			return nil, fmt.Errorf("finding %q: %w", title, err)
		}
		if len(found) > 0 {
			check.Found = true
			check.LessonID = found[0].ID
			slides, err := src.ListSlides(ctx, found[0].ID)
			if err != nil {
				return nil, fmt.Errorf("listing slides of %s: %w", found[0].ID, err)
			}
			check.Slides = len(slides)
		}
		r.Checks = append(r.Checks, check)
	}
	return r, nil
}

// --- Image audit ---

// Selector picks lessons by id or by title. A title selects the most recent
// lesson carrying it.
type Selector struct {
	IDs    []string
	Titles []string
}

type ImageStatus struct {
	SlideNumber int    `json:"slideNumber"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	StoragePath string `json:"storagePath"`
	InStorage   bool   `json:"inStorage"`
}

type LessonImages struct {
	Query    string        `json:"query"`
	Found    bool          `json:"found"`
	LessonID string        `json:"lessonId,omitempty"`
	Title    string        `json:"title,omitempty"`
	Slides   int           `json:"slides"`
	Images   []ImageStatus `json:"images"`
}

type ImageAuditReport struct {
	Lessons   []LessonImages `json:"lessons"`
	Total     int            `json:"total"`
	InStorage int            `json:"inStorage"`
	Missing   int            `json:"missing"`
}

// ImageAudit checks every image of the selected lessons against the bucket.
func ImageAudit(ctx context.Context, src Source, objects Objects, sel Selector) (*ImageAuditReport, error) {
	r := &ImageAuditReport{Lessons: []LessonImages{}}

	var targets []LessonImages
	for _, id := range sel.IDs {
		entry := LessonImages{Query: id, Images: []ImageStatus{}}
		l, err := src.GetLesson(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, fmt.Errorf("getting lesson %s: %w", id, err)
		default:
			entry.Found, entry.LessonID, entry.Title = true, l.ID, l.Title
		}
		targets = append(targets, entry)
	}
	for _, title := range sel.Titles {
		entry := LessonImages{Query: title, Images: []ImageStatus{}}
		found, err := src.FindLessonsByTitle(ctx, title, 1)
		if err != nil {
			return nil, fmt.Errorf("finding %q: %w", title, err)
		}
		if len(found) > 0 {
			entry.Found, entry.LessonID, entry.Title = true, found[0].ID, found[0].Title
		}
		targets = append(targets, entry)
	}

	for _, entry := range targets {
		if entry.Found {
			slides, err := src.ListSlides(ctx, entry.LessonID)
			if err != nil {
				return nil, fmt.Errorf("listing slides of %s: %w", entry.LessonID, err)
			}
			entry.Slides = len(slides)
			for _, sl := range slides {
				for _, img := range sl.Images {
					st := ImageStatus{SlideNumber: sl.SlideNumber, Filename: img.Filename, URL: img.URL, StoragePath: img.StoragePath}
					if img.StoragePath != "" {
						ok, err := objects.Exists(img.StoragePath)
						if err != nil && !errors.Is(err, blob.ErrInvalidKey) {
							return nil, fmt.Errorf("checking %s: %w", img.StoragePath, err)
						}
						st.InStorage = ok
					}
					r.Total++
					if st.InStorage {
						r.InStorage++
					} else {
						r.Missing++
					}
					entry.Images = append(entry.Images, st)
				}
			}
		}
		r.Lessons = append(r.Lessons, entry)
	}
	return r, nil
}

// --- Bucket ---

type BucketStatus struct {
	Name    string `json:"name"`
	Root    string `json:"root"`
	Exists  bool   `json:"exists"`
	Objects int    `json:"objects"`
}

// BucketCheck reports whether the bucket is readable and how many objects
// it holds.
func BucketCheck(objects Objects) *BucketStatus {
	st := &BucketStatus{Name: objects.Name(), Root: objects.Root()}
	list, err := objects.List("")
	if err != nil {
		return st
	}
	st.Exists = true
	st.Objects = len(list)
	return st
}

// DefaultSignedURLTTL is the lifetime of URLs in storage listings.
const DefaultSignedURLTTL = time.Hour

type StorageEntry struct {
	Key         string  `json:"key"`
	URL         string  `json:"url"`
	SizeKB      float64 `json:"sizeKb"`
	ContentType string  `json:"contentType"`
}

// StorageListing lists objects under prefix with signed URLs.
func StorageListing(objects Objects, prefix string, ttl time.Duration) ([]StorageEntry, error) {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	list, err := objects.List(prefix)
	if err != nil {
		return nil, err
	}
	entries := make([]StorageEntry, 0, len(list))
	for _, obj := range list {
		u, err := objects.SignedURL(obj.Key, ttl)
		if err != nil {
			return nil, fmt.Errorf("signing %s: %w", obj.Key, err)
		}
		entries = append(entries, StorageEntry{
			Key:         obj.Key,
			URL:         u,
			SizeKB:      float64(obj.Size) / 1024,
			ContentType: obj.ContentType,
		})
	}
	return entries, nil
}
