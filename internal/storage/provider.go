// Package storage defines the vault file-system abstraction.
package storage

import (
	"errors"
	"io"

	"github.com/starford/notionvault/internal/models"
)

var (
	// ErrTooLarge is returned by WriteFrom when the stream exceeds its limit.
	ErrTooLarge = errors.New("storage: content exceeds size limit")
	// ErrOutsideVault is returned for paths that resolve outside the root.
	ErrOutsideVault = errors.New("storage: path outside vault")
)

// Provider is the interface for vault file operations. Every path is
// relative to the vault root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// WriteFrom atomically replaces the file at path with at most limit bytes
	// read from r. A limit of zero or less means no limit.
	WriteFrom(path string, r io.Reader, limit int64) (int64, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
