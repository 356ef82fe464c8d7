// Package storage provides a domain-agnostic adapter for S3-compatible
// object storage. The report pipeline consumes it through the ArtifactStore
// interface; failures propagate as pipeline failures.
package storage

import (
	"context"
	"time"
)

// DownloadURLTTL is the default expiration for presigned download URLs.
const DownloadURLTTL = 15 * time.Minute

// ArtifactStore is the object storage capability the report pipeline needs.
type ArtifactStore interface {
	// Upload stores the artifact bytes under the given key.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// DownloadURL returns a presigned URL for fetching the artifact.
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Exists reports whether an artifact is stored under the key.
	Exists(ctx context.Context, key string) (bool, error)
}
