package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	gcs "cloud.google.com/go/storage"
)

type memoryObjects struct {
	objects map[string]string
	deleted []string
	failOn  string
}

type memoryWriter struct {
	store  *memoryObjects
	object string
	buf    bytes.Buffer
	fail   bool
}

func (w *memoryWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryWriter) Close() error {
	if w.fail {
		return errors.New("upload refused")
	}
	w.store.objects[w.object] = w.buf.String()
	return nil
}

func (m *memoryObjects) NewWriter(_ context.Context, _, object, _ string) io.WriteCloser {
	return &memoryWriter{store: m, object: object, fail: m.failOn != "" && strings.HasSuffix(object, m.failOn)}
}

func (m *memoryObjects) Delete(_ context.Context, _, object string) error {
	if _, ok := m.objects[object]; !ok {
		return gcs.ErrObjectNotExist
	}
	delete(m.objects, object)
	m.deleted = append(m.deleted, object)
	return nil
}

func sequentialIDs(ids ...string) func() string {
	i := 0
	return func() string {
		id := ids[i]
		i++
		return id
	}
}

func TestUploadReturnsPublicURLs(t *testing.T) {
	store := &memoryObjects{objects: map[string]string{}}
	uploader, err := newImageUploader(store, "shop-images")
	if err != nil {
		t.Fatalf("newImageUploader: %v", err)
	}
	uploader.newID = sequentialIDs("a", "b")

	urls, err := uploader.Upload(context.Background(), "p1", []Image{
		{FileName: "front.png", ContentType: "image/png", Body: strings.NewReader("png")},
		{FileName: "back.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpg")},
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want := []string{
		"https://storage.googleapis.com/shop-images/products/p1/images/a.png",
		"https://storage.googleapis.com/shop-images/products/p1/images/b.jpg",
	}
	if len(urls) != 2 || urls[0] != want[0] || urls[1] != want[1] {
		t.Fatalf("unexpected urls %v", urls)
	}
	if store.objects["products/p1/images/b.jpg"] != "jpg" {
		t.Fatalf("expected object content to be written, got %v", store.objects)
	}
}

func TestUploadRollsBackOnFailure(t *testing.T) {
	store := &memoryObjects{objects: map[string]string{}, failOn: "b.png"}
	uploader, _ := newImageUploader(store, "shop-images", WithPublicBaseURL("https://cdn.example.vn/"))
	uploader.newID = sequentialIDs("a", "b")

	_, err := uploader.Upload(context.Background(), "p1", []Image{
		{FileName: "1.png", ContentType: "image/png", Body: strings.NewReader("1")},
		{FileName: "2.png", ContentType: "image/png", Body: strings.NewReader("2")},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(store.objects) != 0 || len(store.deleted) != 1 {
		t.Fatalf("expected first object to be rolled back, objects=%v deleted=%v", store.objects, store.deleted)
	}
}

func TestUploadRejectsOversizedImage(t *testing.T) {
	uploader, _ := newImageUploader(&memoryObjects{objects: map[string]string{}}, "b", WithMaxImageBytes(10))
	_, err := uploader.Upload(context.Background(), "p1", []Image{{FileName: "x.png", ContentType: "image/png", Size: 11, Body: strings.NewReader("")}})
	if err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestDeleteOnlyTouchesOwnBucket(t *testing.T) {
	store := &memoryObjects{objects: map[string]string{"products/p1/images/a.png": "x"}}
	uploader, _ := newImageUploader(store, "shop-images", WithPublicBaseURL("https://cdn.example.vn"))

	if err := uploader.Delete(context.Background(), "https://elsewhere.example.com/a.png"); !errors.Is(err, ErrNotOwnedURL) {
		t.Fatalf("expected ErrNotOwnedURL, got %v", err)
	}
	if err := uploader.Delete(context.Background(), "https://cdn.example.vn/products/p1/images/a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := uploader.Delete(context.Background(), "https://cdn.example.vn/products/p1/images/a.png"); err != nil {
		t.Fatalf("second Delete should ignore missing object, got %v", err)
	}
}
