package storage

import (
	"fmt"
	"path"
	"strings"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ProductImagePath returns products/{productID}/images/{uploadID}{ext}. The extension comes from
// the content type when known, otherwise from fileName.
func ProductImagePath(productID, uploadID, fileName, contentType string) (string, error) {
	productID, err := validateSegment("productID", productID)
	if err != nil {
		return "", err
	}
	uploadID, err = validateSegment("uploadID", uploadID)
	if err != nil {
		return "", err
	}
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		ext = strings.ToLower(path.Ext(strings.TrimSpace(fileName)))
		if !isAllowedExtension(ext) {
			return "", fmt.Errorf("storage: unsupported image type %q", contentType)
		}
		if ext == ".jpeg" {
			ext = ".jpg"
		}
	}
	return fmt.Sprintf("products/%s/images/%s%s", productID, uploadID, ext), nil
}

func isAllowedExtension(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return true
	}
	return false
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
