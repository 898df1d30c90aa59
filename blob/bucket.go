// Package blob is the image bucket: a gocloud.dev blob bucket backed by a
// local directory, addressed by slash-separated keys, with public objects
// and HMAC-signed URLs for private ones.
package blob

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	cloudblob "gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

var (
	ErrInvalidKey       = errors.New("blob: invalid object key")
	ErrNotFound         = errors.New("blob: object not found")
	ErrSignatureInvalid = errors.New("blob: signature invalid")
	ErrSignatureExpired = errors.New("blob: signature expired")
)

const (
	objectsDir = "objects"
	publicDir  = "public"
)

// Config describes a bucket.
type Config struct {
	Root       string // directory holding the bucket
	Name       string // bucket name, shown in reports
	BaseURL    string // URL prefix objects are served under
	SigningKey string // HMAC key for signed URLs; random when empty
}

// Bucket wraps two fileblob buckets under Root: objects/ holds the data and
// public/ holds an empty marker for every object readable without a
// signature. It is safe for concurrent use.
type Bucket struct {
	root    string
	name    string
	baseURL string
	objects *cloudblob.Bucket
	public  *cloudblob.Bucket
	signer  *fileblob.URLSignerHMAC
	now     func() time.Time
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	Modified    time.Time `json:"modified"`
	Public      bool      `json:"public"`
}

// Open creates the bucket directories if needed.
func Open(cfg Config) (*Bucket, error) {
	if cfg.Root == "" {
		return nil, errors.New("blob: bucket root is required")
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.Root)
	}

	secret := []byte(cfg.SigningKey)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		slog.Warn("blob: no signing key configured, signed URLs will not survive a restart", "bucket", cfg.Name)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("blob: parsing base URL %q: %w", cfg.BaseURL, err)
	}
	signer := fileblob.NewURLSignerHMAC(u, secret)

	objects, err := openDir(filepath.Join(cfg.Root, objectsDir), signer)
	if err != nil {
		return nil, err
	}
	public, err := openDir(filepath.Join(cfg.Root, publicDir), nil)
	if err != nil {
		objects.Close()
		return nil, err
	}

	return &Bucket{
		root:    cfg.Root,
		name:    cfg.Name,
		baseURL: baseURL,
		objects: objects,
		public:  public,
		signer:  signer,
		now:     time.Now,
	}, nil
}

func openDir(dir string, signer fileblob.URLSigner) (*cloudblob.Bucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bucket directory: %w", err)
	}
	b, err := fileblob.OpenBucket(dir, &fileblob.Options{
		URLSigner: signer,
		NoTempDir: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening bucket directory %s: %w", dir, err)
	}
	return b, nil
}

func (b *Bucket) Name() string { return b.name }
func (b *Bucket) Root() string { return b.root }

// Close releases both underlying buckets.
func (b *Bucket) Close() error {
	return errors.Join(b.objects.Close(), b.public.Close())
}

// ValidateKey rejects empty keys, absolute keys and keys that are not in
// clean form or would escape the bucket.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") ||
		path.Clean(key) != key || key == ".." || strings.HasPrefix(key, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// notFound maps a gocloud NotFound error onto ErrNotFound.
func notFound(key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}

// Put stores the contents of r under key, replacing any existing object.
// The content type is sniffed from the first bytes.
func (b *Bucket) Put(key string, r io.Reader) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := b.objects.Upload(context.Background(), key, r, nil); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Upload stores the file at srcPath under key.
func (b *Bucket) Upload(key, srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer f.Close()
	return b.Put(key, f)
}

// Open returns a reader for the object.
func (b *Bucket) Open(key string) (io.ReadCloser, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	r, err := b.objects.NewReader(context.Background(), key, nil)
	if err != nil {
		return nil, notFound(key, err)
	}
	return r, nil
}

// Exists reports whether an object is stored under key.
func (b *Bucket) Exists(key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	return b.objects.Exists(context.Background(), key)
}

// Stat describes the object.
func (b *Bucket) Stat(key string) (*ObjectInfo, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	attrs, err := b.objects.Attributes(context.Background(), key)
	if err != nil {
		return nil, notFound(key, err)
	}
	return &ObjectInfo{
		Key:         key,
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Modified:    attrs.ModTime,
		Public:      b.IsPublic(key),
	}, nil
}

// List returns the objects whose keys start with prefix, sorted by key.
func (b *Bucket) List(prefix string) ([]ObjectInfo, error) {
	ctx := context.Background()
	objects := []ObjectInfo{}
	iter := b.objects.List(&cloudblob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		info, err := b.Stat(obj.Key)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		objects = append(objects, *info)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Delete removes the object and its public marker.
func (b *Bucket) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	ctx := context.Background()
	if err := b.objects.Delete(ctx, key); err != nil {
		return notFound(key, err)
	}
	if err := b.public.Delete(ctx, key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}

// DeletePrefix removes every object under prefix and returns how many were
// removed.
func (b *Bucket) DeletePrefix(prefix string) (int, error) {
	objects, err := b.List(prefix)
	if err != nil {
		return 0, err
	}
	for i, obj := range objects {
		if err := b.Delete(obj.Key); err != nil {
			return i, err
		}
	}
	return len(objects), nil
}

// MakePublic marks an existing object as readable without a signature.
func (b *Bucket) MakePublic(key string) error {
	ok, err := b.Exists(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return b.public.WriteAll(context.Background(), key, nil, &cloudblob.WriterOptions{ContentType: "application/octet-stream"})
}

func (b *Bucket) IsPublic(key string) bool {
	if ValidateKey(key) != nil {
		return false
	}
	ok, err := b.public.Exists(context.Background(), key)
	return err == nil && ok
}

// PublicURL is the unsigned URL of an object.
func (b *Bucket) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return b.baseURL + "/" + strings.Join(segments, "/")
}

// SignedURL returns a URL granting read access to key until ttl elapses.
// The path is the object's public URL; the query carries the signature.
func (b *Bucket) SignedURL(key string, ttl time.Duration) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	signed, err := b.objects.SignedURL(context.Background(), key, &cloudblob.SignedURLOptions{
		Expiry: ttl,
		Method: http.MethodGet,
	})
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", key, err)
	}
	u, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("signing %s: %w", key, err)
	}
	return b.PublicURL(key) + "?" + u.RawQuery, nil
}

// Verify checks the query of a URL produced by SignedURL against key.
func (b *Bucket) Verify(key string, query url.Values) error {
	exp, err := strconv.ParseInt(query.Get("expiry"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry %q", ErrSignatureInvalid, query.Get("expiry"))
	}
	if b.now().Unix() > exp {
		return ErrSignatureExpired
	}
	signedKey, err := b.signer.KeyFromURL(context.Background(), &url.URL{RawQuery: query.Encode()})
	if err != nil || signedKey != key || query.Get("method") != http.MethodGet {
		return ErrSignatureInvalid
	}
	return nil
}
