// Package storage moves files between local disk and an S3-compatible object
// store addressed with oss://bucket/prefix links.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/me/choppy/internal/config"
	"github.com/me/choppy/pkg/model"
)

var linkRe = regexp.MustCompile(`^oss://[a-zA-Z0-9\-_\./]+$`)

// Link is a parsed oss:// address.
type Link struct {
	Bucket string
	Prefix string
}

func (l Link) String() string {
	return "oss://" + l.Bucket + "/" + l.Prefix
}

// ParseLink splits oss://bucket/prefix. The prefix may be empty.
func ParseLink(s string) (Link, error) {
	if !linkRe.MatchString(s) {
		return Link{}, fmt.Errorf("invalid oss link %q: want oss://bucket/path", s)
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(s, "oss://"), "/")
	if bucket == "" {
		return Link{}, fmt.Errorf("invalid oss link %q: empty bucket", s)
	}
	return Link{Bucket: bucket, Prefix: prefix}, nil
}

// Object is one listed object.
type Object struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// objectAPI is the part of *minio.Client the transfers use.
type objectAPI interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Client transfers files to and from the object store.
type Client struct {
	api    objectAPI
	logger *slog.Logger
}

// New connects to the store described by cfg.
func New(cfg config.OSS, logger *slog.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, model.ErrStorageNotConfigured
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("object store client: %w", err)
	}
	return newClient(mc, logger), nil
}

func newClient(api objectAPI, logger *slog.Logger) *Client {
	return &Client{api: api, logger: logger.With("component", "storage")}
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Upload copies a local file or directory tree to link and returns the
// number of objects written. A file uploaded to a prefix ending in "/" (or
// to the bucket root) keeps its base name.
func (c *Client) Upload(ctx context.Context, local, link string) (int, error) {
	l, err := ParseLink(link)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(local)
	if err != nil {
		return 0, err
	}

	if !info.IsDir() {
		key := l.Prefix
		if key == "" || strings.HasSuffix(key, "/") {
			key += filepath.Base(local)
		}
		return 1, c.put(ctx, l.Bucket, key, local)
	}

	n := 0
	err = filepath.WalkDir(local, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(local, p)
		if err != nil {
			return err
		}
		if err := c.put(ctx, l.Bucket, joinKey(l.Prefix, filepath.ToSlash(rel)), p); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func (c *Client) put(ctx context.Context, bucket, key, file string) error {
	info, err := c.api.FPutObject(ctx, bucket, key, file, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("upload %s: %w", file, err)
	}
	c.logger.Debug("uploaded", "file", file, "bucket", bucket, "key", key, "size", info.Size)
	return nil
}

// Download copies every object under link into local and returns the
// number of files written. A link naming exactly one object is written to
// local itself, or into it when local is an existing directory.
func (c *Client) Download(ctx context.Context, link, local string) (int, error) {
	l, err := ParseLink(link)
	if err != nil {
		return 0, err
	}
	objects, err := c.list(ctx, l, true)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("%s: no such object", link)
	}

	if len(objects) == 1 && objects[0].Key == l.Prefix {
		dest := local
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			dest = filepath.Join(local, path.Base(l.Prefix))
		}
		return 1, c.get(ctx, l.Bucket, l.Prefix, dest)
	}

	base := strings.TrimSuffix(l.Prefix, "/")
	n := 0
	for _, o := range objects {
		if base != "" && !strings.HasPrefix(o.Key, base+"/") {
			continue
		}
		rel := strings.TrimPrefix(o.Key, base+"/")
		if base == "" {
			rel = o.Key
		}
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		rel = path.Clean(rel)
		if rel == ".." || strings.HasPrefix(rel, "../") {
			c.logger.Warn("skipping key outside download dir", "key", o.Key)
			continue
		}
		if err := c.get(ctx, l.Bucket, o.Key, filepath.Join(local, filepath.FromSlash(rel))); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (c *Client) get(ctx context.Context, bucket, key, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := c.api.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	c.logger.Debug("downloaded", "bucket", bucket, "key", key, "file", dest)
	return nil
}

// List returns the objects under link. Without recursive, only the first
// level below the prefix is listed, with sub-prefixes ending in "/".
func (c *Client) List(ctx context.Context, link string, recursive bool) ([]Object, error) {
	l, err := ParseLink(link)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, l, recursive)
}

func (c *Client) list(ctx context.Context, l Link, recursive bool) ([]Object, error) {
	var out []Object
	for obj := range c.api.ListObjects(ctx, l.Bucket, minio.ListObjectsOptions{Prefix: l.Prefix, Recursive: recursive}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", l, obj.Err)
		}
		out = append(out, Object{Key: obj.Key, Size: obj.Size, Modified: obj.LastModified})
	}
	return out, nil
}

func joinKey(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return strings.TrimSuffix(prefix, "/") + "/" + rel
}
