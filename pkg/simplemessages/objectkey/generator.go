package objectkey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for storage backends
	GenerateKey(ref string, metadata *KeyMetadata) string
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	SubmissionID uuid.UUID
	FileName     string
	ContentType  string
	// Extension including the leading dot, e.g. ".png"
	Extension string
}

// FlatGenerator stores every payload directly under a single prefix:
// media/{ref}{ext}
type FlatGenerator struct {
	Prefix string
}

func NewFlatGenerator() *FlatGenerator {
	return &FlatGenerator{Prefix: "media"}
}

func (g *FlatGenerator) GenerateKey(ref string, metadata *KeyMetadata) string {
	return fmt.Sprintf("%s/%s%s", g.Prefix, sanitizePathComponent(ref), extension(metadata))
}

// GitLikeGenerator provides Git-style sharded storage:
// media/objects/{shard}/{ref}_{filename}
//
// The shard is taken from the end of the ref, which is the random part of a
// ULID, so payloads spread evenly across directories.
type GitLikeGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator() *GitLikeGenerator {
	return &GitLikeGenerator{
		ShardLength: 2,
	}
}

func (g *GitLikeGenerator) GenerateKey(ref string, metadata *KeyMetadata) string {
	name := sanitizePathComponent(ref)

	shardLength := g.ShardLength
	if shardLength <= 0 {
		shardLength = 2
	}
	if len(name) < shardLength {
		shardLength = len(name)
	}
	shardDir := name[len(name)-shardLength:]

	filename := name
	if metadata != nil && metadata.FileName != "" {
		filename = fmt.Sprintf("%s_%s", name, sanitizeFilename(metadata.FileName))
	} else {
		filename += extension(metadata)
	}

	return fmt.Sprintf("media/objects/%s/%s", shardDir, filename)
}

// SubmissionScopedGenerator groups payloads by owning submission:
// submissions/{submission_id}/{ref}{ext}
type SubmissionScopedGenerator struct{}

func NewSubmissionScopedGenerator() *SubmissionScopedGenerator {
	return &SubmissionScopedGenerator{}
}

func (g *SubmissionScopedGenerator) GenerateKey(ref string, metadata *KeyMetadata) string {
	owner := "unassigned"
	if metadata != nil && metadata.SubmissionID != uuid.Nil {
		owner = metadata.SubmissionID.String()
	}
	return fmt.Sprintf("submissions/%s/%s%s", owner, sanitizePathComponent(ref), extension(metadata))
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(ref string, metadata *KeyMetadata) string
}

func NewCustomFuncGenerator(fn func(ref string, metadata *KeyMetadata) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(ref string, metadata *KeyMetadata) string {
	return g.GenerateFunc(ref, metadata)
}

func extension(metadata *KeyMetadata) string {
	if metadata == nil || metadata.Extension == "" {
		return ""
	}
	ext := strings.ToLower(metadata.Extension)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return sanitizeFilename(ext)
}

// Helper functions for path sanitization
func sanitizeFilename(filename string) string {
	// Replace problematic characters for filesystem compatibility
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"..", "_",
	)
	return replacer.Replace(filename)
}

func sanitizePathComponent(component string) string {
	return strings.ToLower(sanitizeFilename(component))
}

// NewRecommendedGenerator returns the recommended generator for new installations
func NewRecommendedGenerator() Generator {
	return NewGitLikeGenerator()
}

// New returns the generator registered under name: "flat", "git-like" or
// "submission".
func New(name string) (Generator, error) {
	switch name {
	case "", "git-like":
		return NewGitLikeGenerator(), nil
	case "flat":
		return NewFlatGenerator(), nil
	case "submission":
		return NewSubmissionScopedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key generator: %s", name)
	}
}
