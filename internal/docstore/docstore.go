package docstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"ms-docservices/internal/models"
	"ms-docservices/internal/utils"
)

// MaxFileSize is the per-file upload limit.
const MaxFileSize = 5 << 20 // 5 MiB

var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// FileTooLargeError names the offending file so multi-file uploads produce an
// actionable message.
type FileTooLargeError struct {
	Name string
	Size int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file %s is too large (%d bytes, limit %d)", e.Name, e.Size, int64(MaxFileSize))
}

// UnsupportedTypeError reports a file whose content type is not accepted.
type UnsupportedTypeError struct {
	Name     string
	MimeType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("file %s has unsupported type %s (accepted: jpeg, png, pdf)", e.Name, e.MimeType)
}

// Store keeps uploaded documents on the local filesystem under Dir. Stored
// names are random-prefixed so uploads never collide or overwrite.
type Store struct {
	Dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &Store{Dir: dir}, nil
}

// Save validates and persists one uploaded file, returning its document
// metadata. Nothing is written for a file that fails validation.
func (s *Store) Save(originalName, mimeType string, size int64, r io.Reader) (*models.Document, error) {
	if size > MaxFileSize {
		return nil, &FileTooLargeError{Name: originalName, Size: size}
	}
	if !allowedTypes[mimeType] {
		return nil, &UnsupportedTypeError{Name: originalName, MimeType: mimeType}
	}

	stored, err := utils.StoredFileName(originalName)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.Dir, stored)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	written, err := io.Copy(dst, io.LimitReader(r, MaxFileSize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > MaxFileSize {
		err = &FileTooLargeError{Name: originalName, Size: written}
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &models.Document{
		Filename:     stored,
		OriginalName: originalName,
		Path:         path,
		MimeType:     mimeType,
		Size:         written,
	}, nil
}

// Open returns a reader for a stored document. The name must be a bare stored
// filename; anything resolving outside Dir is rejected.
func (s *Store) Open(storedName string) (*os.File, error) {
	if storedName != filepath.Base(storedName) {
		return nil, fmt.Errorf("invalid document name %q", storedName)
	}
	return os.Open(filepath.Join(s.Dir, storedName))
}

// Delete removes a stored document. Missing files are not an error, so
// cleanup after a failed order creation is idempotent.
func (s *Store) Delete(storedName string) error {
	if storedName != filepath.Base(storedName) {
		return fmt.Errorf("invalid document name %q", storedName)
	}
	err := os.Remove(filepath.Join(s.Dir, storedName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
