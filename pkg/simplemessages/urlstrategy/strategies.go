package urlstrategy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// CDNStrategy joins a CDN base URL with the asset's key in its bucket. Stores
// in BlobStores that implement StorageKeyer map the object key first.
type CDNStrategy struct {
	CDNBaseURL string
	BlobStores map[string]BlobStore
}

func NewCDNStrategy(cdnBaseURL string) *CDNStrategy {
	return &CDNStrategy{CDNBaseURL: strings.TrimSuffix(cdnBaseURL, "/")}
}

func (s *CDNStrategy) GenerateMediaURL(_ context.Context, _ string, objectKey string, storageBackend string) (string, error) {
	if s.CDNBaseURL == "" {
		return "", fmt.Errorf("cdn strategy: %w", ErrMissingBaseURL)
	}
	if keyer, ok := s.BlobStores[storageBackend].(StorageKeyer); ok && objectKey != "" {
		objectKey = keyer.StorageKey(objectKey)
	}
	objectKey = strings.TrimPrefix(objectKey, "/")
	if objectKey == "" {
		return "", errors.New("cdn strategy: object key is required")
	}
	return s.CDNBaseURL + "/" + objectKey, nil
}

// MediaProxyStrategy points at {APIBaseURL}/media/{ref}. The object key and
// backend stay private to the server.
type MediaProxyStrategy struct {
	APIBaseURL string
}

func NewMediaProxyStrategy(apiBaseURL string) *MediaProxyStrategy {
	return &MediaProxyStrategy{APIBaseURL: strings.TrimSuffix(apiBaseURL, "/")}
}

func (s *MediaProxyStrategy) GenerateMediaURL(_ context.Context, ref string, _ string, _ string) (string, error) {
	if ref == "" {
		return "", errors.New("media proxy strategy: media ref is required")
	}
	return s.APIBaseURL + "/media/" + url.PathEscape(ref), nil
}

// StorageDelegatedStrategy lets the backend that holds the payload decide.
// Filesystem stores return their URL prefix and S3 stores a presigned or
// public URL.
type StorageDelegatedStrategy struct {
	BlobStores map[string]BlobStore
}

func NewStorageDelegatedStrategy(blobStores map[string]BlobStore) *StorageDelegatedStrategy {
	return &StorageDelegatedStrategy{BlobStores: blobStores}
}

func (s *StorageDelegatedStrategy) GenerateMediaURL(ctx context.Context, _ string, objectKey string, storageBackend string) (string, error) {
	store := s.BlobStores[storageBackend]
	if store == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, storageBackend)
	}
	return store.GetPreviewURL(ctx, objectKey)
}
