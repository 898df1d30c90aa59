package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/deckport"
	"github.com/brunobiangulo/deckport/blob"
	"github.com/brunobiangulo/deckport/extractor"
	"github.com/brunobiangulo/deckport/parser"
	"github.com/brunobiangulo/deckport/report"
)

const maxDeckBytes = 200 << 20

type handler struct {
	engine deckport.Engine
}

func newHandler(e deckport.Engine) *handler {
	return &handler{engine: e}
}

// POST /lessons
// Accepts a multipart deck upload ("file"), extracts it and uploads the
// result as a new lesson. Optional form fields: course, module, school,
// skip_images.
func (h *handler) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, maxDeckBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart form with a deck in 'file'")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal.
	safeName := filepath.Base(header.Filename)
	if !parser.IsDeckFile(safeName) {
		writeError(w, http.StatusBadRequest, "only PowerPoint decks (.pptx, .pptm, .ppsx, .potx) are accepted")
		return
	}

	workDir, err := os.MkdirTemp("", "deckport-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating work dir", "error", err)
		return
	}
	defer os.RemoveAll(workDir)

	deckPath := filepath.Join(workDir, safeName)
	dst, err := os.Create(deckPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	dst.Close()

	jsonPath, err := h.engine.Extract(deckPath, filepath.Join(workDir, "output"))
	if err != nil {
		if errors.Is(err, extractor.ErrMalformedInput) {
			writeError(w, http.StatusUnprocessableEntity, "not a readable .pptx deck")
			return
		}
		writeError(w, http.StatusInternalServerError, "extraction failed")
		slog.Error("extract error", "file", safeName, "error", err)
		return
	}

	var opts []deckport.UploadOption
	if course, module := r.FormValue("course"), r.FormValue("module"); course != "" || module != "" {
		opts = append(opts, deckport.WithModule(course, module))
	}
	if school := r.FormValue("school"); school != "" {
		if strings.ContainsAny(school, "/\\") {
			writeError(w, http.StatusBadRequest, "invalid school code")
			return
		}
		opts = append(opts, deckport.WithSchoolCode(school))
	}
	if skip, _ := strconv.ParseBool(r.FormValue("skip_images")); skip {
		opts = append(opts, deckport.WithSkipImages())
	}

	res, err := h.engine.Upload(ctx, jsonPath, "", opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed")
		slog.Error("upload error", "file", safeName, "error", err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// GET /lessons?limit=N
func (h *handler) handleListLessons(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	lessons, err := h.engine.ListLessons(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list lessons")
		slog.Error("list lessons error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"lessons": lessons,
	})
}

// GET /lessons/{id}
func (h *handler) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	l, err := h.engine.GetLesson(r.Context(), id)
	if errors.Is(err, deckport.ErrLessonNotFound) {
		writeError(w, http.StatusNotFound, "lesson not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get lesson")
		slog.Error("get lesson error", "lesson", id, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DELETE /lessons/{id}
func (h *handler) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := h.engine.DeleteLesson(r.Context(), id)
	if errors.Is(err, deckport.ErrLessonNotFound) {
		writeError(w, http.StatusNotFound, "lesson not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		slog.Error("delete error", "lesson", id, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /lessons/{id}/viewer
func (h *handler) handleViewer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := report.Viewer(r.Context(), h.engine.Store(), []string{id})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load lesson")
		slog.Error("viewer error", "lesson", id, "error", err)
		return
	}
	if len(data.Lessons) == 0 {
		writeError(w, http.StatusNotFound, "lesson not found")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteViewerHTML(w, data, time.Now()); err != nil {
		slog.Error("rendering viewer", "lesson", id, "error", err)
	}
}

// GET /catalog?format=html|json&limit=N
func (h *handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", report.CatalogLessons)
	if err != nil || limit > 100 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	lessons, err := report.Catalog(r.Context(), h.engine.Store(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build catalog")
		slog.Error("catalog error", "error", err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = report.WriteCatalogHTML(w, lessons, time.Now())
	case "json":
		w.Header().Set("Content-Type", "application/json")
		err = report.WriteCatalogJSON(w, lessons)
	default:
		writeError(w, http.StatusBadRequest, "format must be html or json")
		return
	}
	if err != nil {
		slog.Error("rendering catalog", "error", err)
	}
}

// GET /blobs/{key...}
// Serves public objects directly; private ones need a signed query.
func (h *handler) handleBlob(w http.ResponseWriter, r *http.Request) {
	b := h.engine.Bucket()
	key := r.PathValue("key")
	if err := blob.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}

	if !b.IsPublic(key) {
		err := b.Verify(key, r.URL.Query())
		switch {
		case errors.Is(err, blob.ErrSignatureExpired):
			writeError(w, http.StatusForbidden, "signature expired")
			return
		case err != nil:
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	info, err := b.Stat(key)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read object")
		slog.Error("stat blob", "key", key, "error", err)
		return
	}
	rc, err := b.Open(key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read object")
		slog.Error("open blob", "key", key, "error", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("Last-Modified", info.Modified.UTC().Format(http.TimeFormat))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Debug("writing blob", "key", key, "error", err)
	}
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
