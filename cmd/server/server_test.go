//go:build cgo

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brunobiangulo/deckport"
	"github.com/brunobiangulo/deckport/parser/pptxtest"
	"github.com/brunobiangulo/deckport/uploader"
)

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, deckport.Engine) {
	t.Helper()
	dir := t.TempDir()
	cfg := deckport.DefaultConfig()
	cfg.DBPath = filepath.Join(dir, "deckport.db")
	cfg.Bucket.Root = filepath.Join(dir, "bucket")
	cfg.Bucket.SigningKey = "server-test"

	e, err := deckport.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })

	srv := httptest.NewServer(newServer(e, deckport.ServerConfig{APIKey: apiKey}))
	t.Cleanup(srv.Close)
	return srv, e
}

func deckForm(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	data, err := pptxtest.Build(pptxtest.Deck{Slides: []pptxtest.Slide{
		{Shapes: []pptxtest.Shape{pptxtest.Text("Title 1", "Welcome"), pptxtest.Picture("Picture 2", pptxtest.PNG(t, 6, 6))}},
		{Shapes: []pptxtest.Shape{pptxtest.Text("Title 1", "Wrap up")}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(data)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &body, mw.FormDataContentType()
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestLessonLifecycle(t *testing.T) {
	srv, e := newTestServer(t, "")

	body, ctype := deckForm(t, "Geometry.pptx", nil)
	resp, err := http.Post(srv.URL+"/lessons", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /lessons = %d", resp.StatusCode)
	}
	var res uploader.Result
	decode(t, resp, &res)
	if res.Title != "Geometry" || res.Slides != 2 || res.ImagesUploaded != 1 {
		t.Fatalf("result = %+v", res)
	}

	resp, err = http.Get(srv.URL + "/lessons/" + res.LessonID)
	if err != nil {
		t.Fatal(err)
	}
	var l deckport.Lesson
	decode(t, resp, &l)
	if len(l.Slides) != 2 || len(l.Slides[0].Images) != 1 {
		t.Fatalf("lesson = %+v", l)
	}

	// Uploaded images are public and served without a signature.
	key := l.Slides[0].Images[0].StoragePath
	resp, err = http.Get(srv.URL + "/blobs/" + key)
	if err != nil {
		t.Fatal(err)
	}
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" || len(png) == 0 {
		t.Errorf("GET blob = %d %s (%d bytes)", resp.StatusCode, resp.Header.Get("Content-Type"), len(png))
	}

	resp, err = http.Get(srv.URL + "/lessons/" + res.LessonID + "/viewer")
	if err != nil {
		t.Fatal(err)
	}
	html, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(html), "Welcome") {
		t.Errorf("viewer = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/catalog?format=json")
	if err != nil {
		t.Fatal(err)
	}
	var catalog []map[string]any
	decode(t, resp, &catalog)
	if len(catalog) != 1 || catalog[0]["images_count"] != float64(1) {
		t.Errorf("catalog = %v", catalog)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/lessons/"+res.LessonID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("DELETE = %d", resp.StatusCode)
	}
	if ok, _ := e.Bucket().Exists(key); ok {
		t.Error("image survived delete")
	}

	for _, path := range []string{"/lessons/" + res.LessonID, "/lessons/" + res.LessonID + "/viewer"} {
		resp, err = http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s after delete = %d", path, resp.StatusCode)
		}
	}
}

func TestCreateLessonRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, "")

	body, ctype := deckForm(t, "notes.txt", nil)
	resp, err := http.Post(srv.URL+"/lessons", ctype, body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("wrong extension = %d", resp.StatusCode)
	}

	var garbage bytes.Buffer
	mw := multipart.NewWriter(&garbage)
	fw, _ := mw.CreateFormFile("file", "broken.pptx")
	fw.Write([]byte("not a zip"))
	mw.Close()
	resp, err = http.Post(srv.URL+"/lessons", mw.FormDataContentType(), &garbage)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("malformed deck = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/lessons", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("no form = %d", resp.StatusCode)
	}
}

func TestPrivateBlobNeedsSignature(t *testing.T) {
	srv, e := newTestServer(t, "")
	b := e.Bucket()
	if err := b.Put("private/report.txt", strings.NewReader("secret")); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/blobs/private/report.txt")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unsigned = %d", resp.StatusCode)
	}

	signed, err := b.SignedURL("private/report.txt", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(signed)
	resp, err = http.Get(srv.URL + "/blobs/private/report.txt?" + u.RawQuery)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "secret" {
		t.Errorf("signed = %d %q", resp.StatusCode, data)
	}

	resp, err = http.Get(srv.URL + "/blobs/private/missing.txt")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unsigned missing object = %d", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")

	tests := []struct {
		path   string
		header string
		want   int
	}{
		{"/health", "", http.StatusOK},
		{"/lessons", "", http.StatusUnauthorized},
		{"/lessons", "Bearer wrong", http.StatusUnauthorized},
		{"/lessons", "Bearer s3cret", http.StatusOK},
		{"/blobs/some/key.png", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s (%q) = %d, want %d", tt.path, tt.header, resp.StatusCode, tt.want)
		}
	}
}

func TestListLessonsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/lessons?limit=abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
