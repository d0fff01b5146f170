// Package urlstrategy turns stored media assets into URLs a browser can load.
package urlstrategy

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingBaseURL is returned when a strategy needs a base URL it was not given.
	ErrMissingBaseURL = errors.New("base url is required")
	// ErrUnknownBackend is returned for assets stored on an unregistered backend.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// URLStrategy resolves a stored asset to a URL for inline display.
type URLStrategy interface {
	GenerateMediaURL(ctx context.Context, ref string, objectKey string, storageBackend string) (string, error)
}

// BlobStore is the part of a blob store a URL strategy needs.
type BlobStore interface {
	GetPreviewURL(ctx context.Context, objectKey string) (string, error)
}

// StorageKeyer is implemented by blob stores that keep objects under a key
// other than the media object key, such as an S3 store with a key prefix.
type StorageKeyer interface {
	StorageKey(objectKey string) string
}

// Type names a strategy in configuration.
type Type string

const (
	// TypeStorageDelegated asks each blob store for its own preview URL.
	TypeStorageDelegated Type = "storage-delegated"
	// TypeCDN serves object keys from a CDN base URL.
	TypeCDN Type = "cdn"
	// TypeMediaProxy routes through the application's GET /media/{ref}.
	TypeMediaProxy Type = "media-proxy"
)

// ParseType validates a configured strategy name. The empty string selects
// TypeStorageDelegated.
func ParseType(name string) (Type, error) {
	switch t := Type(name); t {
	case "":
		return TypeStorageDelegated, nil
	case TypeStorageDelegated, TypeCDN, TypeMediaProxy:
		return t, nil
	default:
		return "", fmt.Errorf("unknown url strategy %q (valid: %s, %s, %s)", name, TypeStorageDelegated, TypeCDN, TypeMediaProxy)
	}
}

// NeedsBaseURL reports whether the strategy cannot work without a base URL.
// Media proxy URLs need the path the API is mounted under.
func (t Type) NeedsBaseURL() bool {
	return t == TypeCDN || t == TypeMediaProxy
}

// Config selects and parameterizes a strategy.
type Config struct {
	Type       Type
	CDNBaseURL string
	APIBaseURL string
	BlobStores map[string]BlobStore
}

// NewURLStrategy builds the strategy described by config.
func NewURLStrategy(config Config) (URLStrategy, error) {
	t, err := ParseType(string(config.Type))
	if err != nil {
		return nil, err
	}
	switch t {
	case TypeCDN:
		if config.CDNBaseURL == "" {
			return nil, fmt.Errorf("cdn strategy: %w", ErrMissingBaseURL)
		}
		s := NewCDNStrategy(config.CDNBaseURL)
		s.BlobStores = config.BlobStores
		return s, nil
	case TypeMediaProxy:
		if config.APIBaseURL == "" {
			return nil, fmt.Errorf("media proxy strategy: %w", ErrMissingBaseURL)
		}
		return NewMediaProxyStrategy(config.APIBaseURL), nil
	default:
		if len(config.BlobStores) == 0 {
			return nil, errors.New("storage-delegated strategy needs at least one blob store")
		}
		return NewStorageDelegatedStrategy(config.BlobStores), nil
	}
}
