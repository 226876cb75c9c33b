package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

var (
	// ErrFileTooLarge is returned when an upload exceeds its policy size.
	ErrFileTooLarge = errors.New("file too large")
	// ErrExtensionNotAllowed is returned when the upload extension is not allowed.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
)

// UploadPolicy constrains one kind of upload.
type UploadPolicy struct {
	MaxBytes   int64
	Extensions []string
	// MaxDimension downsizes raster images whose width or height is larger.
	// Zero keeps images untouched.
	MaxDimension int
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Validate checks the upload against the policy without reading its content.
func (p UploadPolicy) Validate(u Upload) error {
	ext := Extension(u.Filename)
	if len(p.Extensions) > 0 && !containsFold(p.Extensions, ext) {
		return fmt.Errorf("%w: %q, allowed: %s", ErrExtensionNotAllowed, ext, strings.Join(p.Extensions, ", "))
	}
	if p.MaxBytes > 0 && u.Size > p.MaxBytes {
		return fmt.Errorf("%w: max %d KB", ErrFileTooLarge, p.MaxBytes/1024)
	}
	return nil
}

// Extension returns the lower case extension without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Store validates the upload and writes it under dir with a random name,
// returning the stored relative path.
func (s *LocalStorage) Store(dir string, u Upload, policy UploadPolicy) (string, error) {
	if err := policy.Validate(u); err != nil {
		return "", err
	}

	ext := Extension(u.Filename)
	name := path.Join(dir, uuid.NewString()+"."+ext)

	limit := policy.MaxBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(u.Content, limit+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: max %d KB", ErrFileTooLarge, limit/1024)
	}

	if policy.MaxDimension > 0 && isRaster(ext) {
		data, err = fitImage(data, ext, policy.MaxDimension)
		if err != nil {
			return "", err
		}
	}

	return s.Save(name, data)
}

func fitImage(data []byte, ext string, maxDimension int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxDimension && bounds.Dy() <= maxDimension {
		return data, nil
	}

	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("image format: %w", err)
	}
	resized := imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func isRaster(ext string) bool {
	switch ext {
	case "png", "jpg", "jpeg":
		return true
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimPrefix(v, "."), target) {
			return true
		}
	}
	return false
}
