package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested path does not exist in storage.
var ErrNotFound = errors.New("not found")

// Storage provides an abstraction over key-value style object storage.
// Paths are slash separated; List returns the objects directly under a prefix.
type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Type selects a Storage backend.
type Type string

const (
	TypeLocal  Type = "local"
	TypeS3     Type = "s3"
	TypeSQLite Type = "sqlite"
)

// Options carries the settings of every backend; only the fields of the
// selected Type are used.
type Options struct {
	Type       Type
	BaseDir    string
	S3Bucket   string
	S3Prefix   string
	S3Region   string
	SQLitePath string
}

// Open builds the backend selected by opts.Type.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch Type(strings.ToLower(string(opts.Type))) {
	case TypeS3:
		return NewS3Storage(ctx, opts.S3Bucket, opts.S3Prefix, opts.S3Region)
	case TypeSQLite:
		return NewSQLiteStorage(ctx, opts.SQLitePath)
	case TypeLocal, "":
		return NewLocalStorage(opts.BaseDir)
	default:
		return nil, fmt.Errorf("unknown storage type %q", opts.Type)
	}
}
