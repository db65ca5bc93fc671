// Package storage uploads product images to Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/option"
)

const defaultPublicBase = "https://storage.googleapis.com"

// ErrNotOwnedURL is returned by Delete for URLs outside the configured bucket.
var ErrNotOwnedURL = errors.New("storage: url does not belong to the images bucket")

// Image is one uploaded file.
type Image struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// objectStore is the slice of the GCS client the uploader needs.
type objectStore interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
	Delete(ctx context.Context, bucket, object string) error
}

// ImageUploader writes product images under products/{id}/images and returns public URLs.
type ImageUploader struct {
	store      objectStore
	bucket     string
	publicBase string
	maxBytes   int64
	newID      func() string
	closer     io.Closer
}

// UploaderOption customises the uploader.
type UploaderOption func(*ImageUploader)

// WithPublicBaseURL overrides the URL prefix, e.g. a CDN host fronting the bucket.
func WithPublicBaseURL(base string) UploaderOption {
	return func(u *ImageUploader) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			u.publicBase = base
		}
	}
}

// WithMaxImageBytes caps each image. Zero disables the limit.
func WithMaxImageBytes(n int64) UploaderOption {
	return func(u *ImageUploader) { u.maxBytes = n }
}

// NewImageUploader opens a GCS client for bucket.
func NewImageUploader(ctx context.Context, bucket string, clientOpts []option.ClientOption, opts ...UploaderOption) (*ImageUploader, error) {
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}
	u, err := newImageUploader(gcsObjectStore{client: client}, bucket, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	u.closer = client
	return u, nil
}

// Close releases the underlying client.
func (u *ImageUploader) Close() error {
	if u == nil || u.closer == nil {
		return nil
	}
	return u.closer.Close()
}

func newImageUploader(store objectStore, bucket string, opts ...UploaderOption) (*ImageUploader, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: images bucket is required")
	}
	u := &ImageUploader{
		store:      store,
		bucket:     bucket,
		publicBase: defaultPublicBase + "/" + bucket,
		newID:      func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

// Upload stores every image and returns their public URLs in input order. Already written
// objects are removed when a later image fails.
func (u *ImageUploader) Upload(ctx context.Context, productID string, images []Image) ([]string, error) {
	urls := make([]string, 0, len(images))
	written := make([]string, 0, len(images))
	for _, img := range images {
		object, err := ProductImagePath(productID, u.newID(), img.FileName, img.ContentType)
		if err == nil {
			err = u.write(ctx, object, img)
		}
		if err != nil {
			for _, done := range written {
				_ = u.store.Delete(ctx, u.bucket, done)
			}
			return nil, err
		}
		written = append(written, object)
		urls = append(urls, u.publicBase+"/"+object)
	}
	return urls, nil
}

func (u *ImageUploader) write(ctx context.Context, object string, img Image) error {
	if u.maxBytes > 0 && img.Size > u.maxBytes {
		return fmt.Errorf("storage: %s exceeds %d bytes", img.FileName, u.maxBytes)
	}
	w := u.store.NewWriter(ctx, u.bucket, object, img.ContentType)
	if _, err := io.Copy(w, img.Body); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalise %s: %w", object, err)
	}
	return nil
}

// Delete removes the object behind a URL previously returned by Upload. Missing objects are not
// an error.
func (u *ImageUploader) Delete(ctx context.Context, rawURL string) error {
	prefix := u.publicBase + "/"
	if !strings.HasPrefix(rawURL, prefix) {
		return ErrNotOwnedURL
	}
	object, err := url.PathUnescape(strings.TrimPrefix(rawURL, prefix))
	if err != nil {
		return fmt.Errorf("storage: decode url: %w", err)
	}
	err = u.store.Delete(ctx, u.bucket, object)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

type gcsObjectStore struct {
	client *gcs.Client
}

func (s gcsObjectStore) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	return w
}

func (s gcsObjectStore) Delete(ctx context.Context, bucket, object string) error {
	return s.client.Bucket(bucket).Object(object).Delete(ctx)
}
