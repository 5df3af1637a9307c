// Package storage defines the file primitives the engine and asset store consume.
package storage

import "time"

// Entry is one item of a directory listing.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Provider is the interface for filesystem operations on absolute paths.
type Provider interface {
	// ReadDir lists the entries of dir. It fails if dir does not exist.
	ReadDir(dir string) ([]Entry, error)
	// Stat describes the file or directory at path.
	Stat(path string) (Entry, error)
	// ReadFile returns the raw bytes of the file at path.
	ReadFile(path string) ([]byte, error)
	// WriteFile atomically writes content to path, creating parent directories.
	WriteFile(path string, content []byte) error
	// Remove deletes the file at path.
	Remove(path string) error
	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string) error
}
