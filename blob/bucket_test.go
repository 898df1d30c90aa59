package blob

import (
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestBucket(t *testing.T) *Bucket {
	t.Helper()
	b, err := Open(Config{
		Root:       filepath.Join(t.TempDir(), "bucket"),
		Name:       "test-bucket",
		BaseURL:    "http://localhost:8080/blobs/",
		SigningKey: "secret",
	})
	if err != nil {
		t.Fatalf("opening bucket: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func TestPutOpenStat(t *testing.T) {
	b := newTestBucket(t)
	png := []byte("\x89PNG\r\n\x1a\n rest of image")

	if err := b.Put("schools/DMT/lessons/L1/images/a.png", strings.NewReader(string(png))); err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := b.Open("schools/DMT/lessons/L1/images/a.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(png) {
		t.Errorf("read back %q", data)
	}

	info, err := b.Stat("schools/DMT/lessons/L1/images/a.png")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size != int64(len(png)) || info.ContentType != "image/png" || info.Public {
		t.Errorf("info = %+v", info)
	}

	ok, err := b.Exists("schools/DMT/lessons/L1/images/a.png")
	if err != nil || !ok {
		t.Errorf("exists = %v, %v", ok, err)
	}
	ok, err = b.Exists("schools/DMT/lessons/L1/images/b.png")
	if err != nil || ok {
		t.Errorf("missing exists = %v, %v", ok, err)
	}
	// A directory is not an object.
	ok, err = b.Exists("schools/DMT")
	if err != nil || ok {
		t.Errorf("directory exists = %v, %v", ok, err)
	}
}

func TestUploadFromFile(t *testing.T) {
	b := newTestBucket(t)
	src := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := b.Upload("x/img.png", src); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := b.Upload("x/other.png", filepath.Join(t.TempDir(), "nope.png")); err == nil {
		t.Error("expected an error for a missing source file")
	}
}

func TestInvalidKeys(t *testing.T) {
	b := newTestBucket(t)
	for _, key := range []string{"", "/abs", "../escape", "a/../../b", "a//b", "a/./b", "a\\b", "trailing/", ".."} {
		if err := b.Put(key, strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Put(%q): expected ErrInvalidKey, got %v", key, err)
		}
	}
	if err := ValidateKey("schools/DMT/a.png"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
}

func TestListAndDelete(t *testing.T) {
	b := newTestBucket(t)
	for _, key := range []string{"b/2.png", "a/1.png", "b/1.png", "c.txt"} {
		if err := b.Put(key, strings.NewReader(key)); err != nil {
			t.Fatal(err)
		}
	}

	objs, err := b.List("b/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objs) != 2 || objs[0].Key != "b/1.png" || objs[1].Key != "b/2.png" {
		t.Errorf("list b/ = %+v", objs)
	}

	all, err := b.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].Key != "a/1.png" {
		t.Errorf("list all = %+v", all)
	}

	if err := b.Delete("a/1.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete("a/1.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := b.Open("a/1.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("open deleted: expected ErrNotFound, got %v", err)
	}

	n, err := b.DeletePrefix("b/")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	rest, _ := b.List("")
	if len(rest) != 1 || rest[0].Key != "c.txt" {
		t.Errorf("remaining = %+v", rest)
	}
}

// ---------------------------------------------------------------------------
// URLs
// ---------------------------------------------------------------------------

func TestPublic(t *testing.T) {
	b := newTestBucket(t)
	if err := b.MakePublic("missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := b.Put("dir/my image.png", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if b.IsPublic("dir/my image.png") {
		t.Error("new object should be private")
	}
	if err := b.MakePublic("dir/my image.png"); err != nil {
		t.Fatal(err)
	}
	if !b.IsPublic("dir/my image.png") {
		t.Error("object should be public")
	}
	if got, want := b.PublicURL("dir/my image.png"), "http://localhost:8080/blobs/dir/my%20image.png"; got != want {
		t.Errorf("public url = %q, want %q", got, want)
	}

	if err := b.Delete("dir/my image.png"); err != nil {
		t.Fatal(err)
	}
	if b.IsPublic("dir/my image.png") {
		t.Error("marker left behind after delete")
	}
}

func TestSignedURL(t *testing.T) {
	b := newTestBucket(t)

	raw, err := b.SignedURL("a/b.png", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/blobs/a/b.png" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	exp, err := strconv.ParseInt(q.Get("expiry"), 10, 64)
	if err != nil {
		t.Fatalf("expiry = %q", q.Get("expiry"))
	}
	if d := time.Until(time.Unix(exp, 0)); d < 59*time.Minute || d > time.Hour+time.Minute {
		t.Errorf("expires in %v, want about an hour", d)
	}

	if err := b.Verify("a/b.png", q); err != nil {
		t.Errorf("verify: %v", err)
	}
	if err := b.Verify("a/c.png", q); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("other key: expected ErrSignatureInvalid, got %v", err)
	}

	tampered := url.Values{}
	for k, v := range q {
		tampered[k] = v
	}
	tampered.Set("expiry", strconv.FormatInt(exp+3600, 10))
	if err := b.Verify("a/b.png", tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("tampered expiry: expected ErrSignatureInvalid, got %v", err)
	}
	tampered.Set("expiry", "soon")
	if err := b.Verify("a/b.png", tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("bad expiry: expected ErrSignatureInvalid, got %v", err)
	}

	b.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if err := b.Verify("a/b.png", q); !errors.Is(err, ErrSignatureExpired) {
		t.Errorf("expected ErrSignatureExpired, got %v", err)
	}

	if _, err := b.SignedURL("../x", time.Hour); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSignaturesDependOnSigningKey(t *testing.T) {
	root := t.TempDir()
	a, err := Open(Config{Root: filepath.Join(root, "a"), BaseURL: "http://x/blobs", SigningKey: "k1"})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	c, err := Open(Config{Root: filepath.Join(root, "c"), BaseURL: "http://x/blobs", SigningKey: "k2"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	raw, err := a.SignedURL("x.png", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(raw)
	if err := a.Verify("x.png", u.Query()); err != nil {
		t.Errorf("own signature rejected: %v", err)
	}
	if err := c.Verify("x.png", u.Query()); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("foreign signature: expected ErrSignatureInvalid, got %v", err)
	}
}

func TestOnDiskLayout(t *testing.T) {
	b := newTestBucket(t)
	if err := b.Put("k/v.png", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := b.MakePublic("k/v.png"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"objects/k/v.png", "public/k/v.png"} {
		if _, err := os.Stat(filepath.Join(b.Root(), filepath.FromSlash(p))); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
	// Marker files never show up as objects.
	objs, err := b.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || !objs[0].Public {
		t.Errorf("list = %+v", objs)
	}
}

func TestOpenRequiresRoot(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("expected an error without a root")
	}
}
