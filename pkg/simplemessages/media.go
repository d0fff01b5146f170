package simplemessages

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/tendant/simple-messages/pkg/simplemessages/mediaref"
	"github.com/tendant/simple-messages/pkg/simplemessages/objectkey"
)

// allowedImageTypes maps accepted image MIME types to the extension used in
// object keys.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// mimeAliases are non-canonical names browsers still send.
var mimeAliases = map[string]string{
	"image/jpg":   "image/jpeg",
	"image/pjpeg": "image/jpeg",
	"image/x-png": "image/png",
}

// Upload is a raw, untrusted file upload as received by the transport layer.
type Upload struct {
	FileName string
	// MimeType is the type declared by the client.
	MimeType string
	// Size is the declared size in bytes; zero or negative when unknown.
	Size    int64
	Content io.Reader
}

// PreparedMedia is an upload that passed every check and is ready to store.
// Nothing has been written yet.
type PreparedMedia struct {
	FileName  string
	MimeType  string
	Extension string
	data      []byte
}

// Size returns the payload length in bytes.
func (p *PreparedMedia) Size() int64 {
	return int64(len(p.data))
}

// MediaHandler validates uploads and writes accepted payloads to a blob store.
type MediaHandler struct {
	maxBytes       int64
	stores         map[string]BlobStore
	defaultBackend string
	keys           objectkey.Generator
	refs           *mediaref.Generator
	now            func() time.Time
}

// NewMediaHandler creates a handler that writes to stores[defaultBackend].
// A nil key generator falls back to objectkey.NewRecommendedGenerator.
func NewMediaHandler(maxBytes int64, stores map[string]BlobStore, defaultBackend string, keys objectkey.Generator) *MediaHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultLimits().MaxMediaBytes
	}
	if keys == nil {
		keys = objectkey.NewRecommendedGenerator()
	}
	return &MediaHandler{
		maxBytes:       maxBytes,
		stores:         stores,
		defaultBackend: defaultBackend,
		keys:           keys,
		refs:           mediaref.NewGenerator(),
		now:            time.Now,
	}
}

// Prepare checks an upload without writing anything. It returns nil, nil when
// no upload was supplied or the payload is empty.
//
// Checks run in order: declared type, size, then the sniffed content type.
// Failures are *ValidationError values for FieldMedia.
func (h *MediaHandler) Prepare(upload *Upload) (*PreparedMedia, error) {
	if upload == nil || upload.Content == nil {
		return nil, nil
	}
	if upload.Size > h.maxBytes {
		return nil, OversizedUpload(upload.MimeType, h.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(upload.Content, h.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	declared, ok := canonicalImageType(upload.MimeType)
	if !ok {
		return nil, &ValidationError{Field: FieldMedia, Err: ErrUnsupportedMediaType}
	}
	if int64(len(data)) > h.maxBytes {
		return nil, &ValidationError{Field: FieldMedia, Limit: h.maxBytes, Err: ErrMediaTooLarge}
	}

	detected, ok := canonicalImageType(mimetype.Detect(data).String())
	if !ok {
		return nil, &ValidationError{
			Field: FieldMedia,
			Err:   fmt.Errorf("%w: content is not %s", ErrUnsupportedMediaType, declared),
		}
	}

	return &PreparedMedia{
		FileName:  cleanFileName(upload.FileName),
		MimeType:  detected,
		Extension: allowedImageTypes[detected],
		data:      data,
	}, nil
}

// Store writes a prepared payload under a fresh ref and returns its record.
// Write failures wrap ErrStorageUnavailable.
func (h *MediaHandler) Store(ctx context.Context, submissionID uuid.UUID, p *PreparedMedia) (*MediaAsset, error) {
	ref, err := h.refs.New()
	if err != nil {
		return nil, &MediaError{Op: "generate_ref", Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
	}

	store, ok := h.stores[h.defaultBackend]
	if !ok || store == nil {
		return nil, &MediaError{Ref: ref, Op: "upload", Err: fmt.Errorf("%w: no blob store configured", ErrStorageUnavailable)}
	}

	asset := &MediaAsset{
		Ref:            ref,
		SubmissionID:   submissionID,
		StorageBackend: h.defaultBackend,
		FileName:       p.FileName,
		MimeType:       p.MimeType,
		SizeBytes:      p.Size(),
		CreatedAt:      h.now().UTC(),
	}
	asset.ObjectKey = h.keys.GenerateKey(ref, &objectkey.KeyMetadata{
		SubmissionID: asset.SubmissionID,
		FileName:     p.FileName,
		ContentType:  p.MimeType,
		Extension:    p.Extension,
	})

	err = store.UploadWithParams(ctx, bytes.NewReader(p.data), UploadParams{
		ObjectKey: asset.ObjectKey,
		MimeType:  asset.MimeType,
	})
	if err != nil {
		return nil, &MediaError{Ref: ref, Op: "upload", Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
	}
	return asset, nil
}

// Attach runs Prepare then Store. It returns nil, nil when there is nothing
// to attach.
func (h *MediaHandler) Attach(ctx context.Context, submissionID uuid.UUID, upload *Upload) (*MediaAsset, error) {
	p, err := h.Prepare(upload)
	if err != nil || p == nil {
		return nil, err
	}
	return h.Store(ctx, submissionID, p)
}

// Discard deletes the payload of an asset that was never committed.
func (h *MediaHandler) Discard(ctx context.Context, asset *MediaAsset) error {
	store, ok := h.stores[asset.StorageBackend]
	if !ok {
		return &MediaError{Ref: asset.Ref, Op: "discard", Err: fmt.Errorf("unknown storage backend %q", asset.StorageBackend)}
	}
	if err := store.Delete(ctx, asset.ObjectKey); err != nil {
		return &StorageError{Backend: asset.StorageBackend, Key: asset.ObjectKey, Op: "delete", Err: err}
	}
	return nil
}

// OversizedUpload is the validation error for an upload known to exceed
// limit before its payload was read. The declared type is still checked
// first, so a non-image is reported as unsupported rather than too large.
func OversizedUpload(declaredType string, limit int64) error {
	if _, ok := canonicalImageType(declaredType); !ok {
		return &ValidationError{Field: FieldMedia, Err: ErrUnsupportedMediaType}
	}
	return &ValidationError{Field: FieldMedia, Limit: limit, Err: ErrMediaTooLarge}
}

func canonicalImageType(declared string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", false
	}
	mediaType = strings.ToLower(mediaType)
	if alias, ok := mimeAliases[mediaType]; ok {
		mediaType = alias
	}
	_, ok := allowedImageTypes[mediaType]
	return mediaType, ok
}

// cleanFileName keeps only the base name of a client supplied path.
func cleanFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if len(name) > 255 {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = strings.ToValidUTF8(name[:255-len(ext)], "") + ext
	}
	return name
}
