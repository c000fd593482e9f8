// Package blobstore writes export files to object storage. Every Put is a
// whole-object overwrite so that re-running a batch replaces its output.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/points-exporter/internal/config"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("object not found")

// Store is the object storage used for exports and run state.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns the keys that start with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes every object whose key starts with prefix and reports how
	// many were removed.
	Delete(ctx context.Context, prefix string) (int, error)

	// Close releases the underlying client.
	Close() error
}

// New creates the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.Store) (Store, error) {
	switch cfg.Backend {
	case config.BackendGCS:
		return NewGCSStore(ctx, GCSConfig{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.CredentialsFile,
		})
	case config.BackendS3:
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			Staging:         cfg.Staging,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		})
	case config.BackendFile:
		return NewFileStore(cfg.BaseDir)
	default:
		return nil, fmt.Errorf("New: unsupported store backend %q", cfg.Backend)
	}
}

// PartitionKey is the object key of one export batch:
// {prefix}/year=YYYY/month=MM/day=DD/{batch}.{ext}.
func PartitionKey(prefix string, date civil.Date, batch int, ext string) string {
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("year=%04d", date.Year),
		fmt.Sprintf("month=%02d", int(date.Month)),
		fmt.Sprintf("day=%02d", date.Day),
		fmt.Sprintf("%d.%s", batch, strings.TrimPrefix(ext, ".")),
	)
}

// DatePrefix is the key prefix shared by every batch of one date.
func DatePrefix(prefix string, date civil.Date) string {
	return path.Join(
		strings.Trim(prefix, "/"),
		fmt.Sprintf("year=%04d", date.Year),
		fmt.Sprintf("month=%02d", int(date.Month)),
		fmt.Sprintf("day=%02d", date.Day),
	) + "/"
}
