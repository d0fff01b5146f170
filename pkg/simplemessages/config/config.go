package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/objectkey"
	"github.com/tendant/simple-messages/pkg/simplemessages/repo/memory"
	repopg "github.com/tendant/simple-messages/pkg/simplemessages/repo/postgres"
	reposqlite "github.com/tendant/simple-messages/pkg/simplemessages/repo/sqlite"
	fsstorage "github.com/tendant/simple-messages/pkg/simplemessages/storage/fs"
	memorystorage "github.com/tendant/simple-messages/pkg/simplemessages/storage/memory"
	s3storage "github.com/tendant/simple-messages/pkg/simplemessages/storage/s3"
	"github.com/tendant/simple-messages/pkg/simplemessages/urlstrategy"
)

// Database types
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Storage backend types
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          DatabaseMemory,
		DBSchema:              "messages",
		DefaultStorageBackend: StorageMemory,
		StorageBackends: []StorageBackendConfig{
			{Name: StorageMemory, Type: StorageMemory, Config: map[string]interface{}{}},
		},
		Limits:             simplemessages.DefaultLimits(),
		EnableEventLogging: true,
		AutoMigrate:        true,
	}
}

// ServerConfig represents server configuration for the simple-messages service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string // postgres connection string or sqlite file path
	DatabaseType string // "memory", "postgres", "sqlite"
	DBSchema     string // Postgres schema to use (default: messages)

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Media URL resolution
	URLStrategy        string // "storage-delegated" (default), "cdn", "media-proxy"
	MediaBaseURL       string // CDN base for "cdn", API base for "media-proxy"
	ObjectKeyGenerator string // "git-like" (default), "flat", "submission"
	PlaceholderURL     string

	Limits simplemessages.Limits

	// Server options
	EnableEventLogging bool
	// AutoMigrate applies schema migrations when the service is built.
	AutoMigrate bool
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres, DatabaseSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'sqlite'")
	}

	// Ensure default storage backend exists in configured backends
	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	strategy, err := urlstrategy.ParseType(c.URLStrategy)
	if err != nil {
		return err
	}
	if strategy.NeedsBaseURL() && c.MediaBaseURL == "" {
		return fmt.Errorf("media_base_url is required for the %s url strategy", strategy)
	}
	if strategy == urlstrategy.TypeStorageDelegated {
		// A filesystem store can only hand out URLs for a directory that is served.
		for _, backend := range c.StorageBackends {
			if backend.Type == StorageFS && getString(backend.Config, "url_prefix", "") == "" {
				return fmt.Errorf("filesystem storage %q needs a url_prefix for the %s url strategy (or use %s)",
					backend.Name, strategy, urlstrategy.TypeMediaProxy)
			}
		}
	}

	if _, err := objectkey.New(c.ObjectKeyGenerator); err != nil {
		return err
	}

	if c.Limits.MaxMediaBytes < 0 {
		return fmt.Errorf("max media bytes must not be negative, got: %d", c.Limits.MaxMediaBytes)
	}

	return nil
}

// closers releases the connections a built service holds.
type closers []func() error

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// BuildService creates a Service instance from the server configuration.
// The returned closer releases database connections and must be closed after
// the service is no longer used. Extra options are applied after the
// configured ones.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...simplemessages.Option) (simplemessages.Service, io.Closer, error) {
	var options []simplemessages.Option
	var cleanup closers

	// Set up repository
	repo, closeRepo, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	if closeRepo != nil {
		cleanup = append(cleanup, closeRepo)
	}
	options = append(options, simplemessages.WithRepository(repo))

	// Set up storage backends
	stores := make(map[string]urlstrategy.BlobStore, len(c.StorageBackends))
	for _, backendConfig := range c.StorageBackends {
		store, err := c.buildStorageBackend(backendConfig)
		if err != nil {
			cleanup.Close()
			return nil, nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		stores[backendConfig.Name] = store
		options = append(options, simplemessages.WithBlobStore(backendConfig.Name, store))
	}
	options = append(options, simplemessages.WithDefaultBlobStore(c.DefaultStorageBackend))

	strategy, err := urlstrategy.NewURLStrategy(urlstrategy.Config{
		Type:       urlstrategy.Type(c.URLStrategy),
		CDNBaseURL: c.MediaBaseURL,
		APIBaseURL: c.MediaBaseURL,
		BlobStores: stores,
	})
	if err != nil {
		cleanup.Close()
		return nil, nil, fmt.Errorf("failed to build url strategy: %w", err)
	}
	options = append(options, simplemessages.WithURLStrategy(strategy))

	keys, err := objectkey.New(c.ObjectKeyGenerator)
	if err != nil {
		cleanup.Close()
		return nil, nil, err
	}
	options = append(options,
		simplemessages.WithObjectKeyGenerator(keys),
		simplemessages.WithLimits(c.Limits),
		simplemessages.WithPlaceholderURL(c.PlaceholderURL),
	)

	// Set up event sink
	if c.EnableEventLogging {
		options = append(options, simplemessages.WithEventSink(simplemessages.NewLoggingEventSink(slog.Default())))
	}

	svc, err := simplemessages.New(append(options, extra...)...)
	if err != nil {
		cleanup.Close()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context) (simplemessages.Repository, func() error, error) {
	switch c.DatabaseType {
	case DatabaseMemory:
		return memory.New(), nil, nil

	case DatabasePostgres:
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		if c.AutoMigrate {
			if err := c.migratePostgres(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return repopg.NewWithPool(pool), func() error { pool.Close(); return nil }, nil

	case DatabaseSQLite:
		db, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		// An in-memory database only exists on this handle, so it is
		// always migrated here.
		if c.AutoMigrate || c.DatabaseURL == ":memory:" {
			if err := reposqlite.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return reposqlite.New(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// Migrate applies pending schema migrations for the configured database.
// It is a no-op for the memory repository.
func (c *ServerConfig) Migrate(ctx context.Context) error {
	switch c.DatabaseType {
	case DatabasePostgres:
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return err
		}
		defer pool.Close()
		return c.migratePostgres(ctx, pool)

	case DatabaseSQLite:
		db, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return reposqlite.Migrate(ctx, db)
	}
	return nil
}

// migratePostgres creates the configured schema, then applies migrations
// inside it.
func (c *ServerConfig) migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if err := repopg.EnsureSchema(ctx, pool, c.DBSchema); err != nil {
		return err
	}
	return repopg.MigratePool(ctx, pool)
}

// newPool opens a pgx pool that sets search_path on every connection.
func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the configured schema.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := newPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (simplemessages.BlobStore, error) {
	switch config.Type {
	case StorageMemory:
		return memorystorage.New(), nil

	case StorageFS:
		fsConfig := fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/media"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		}
		return fsstorage.New(fsConfig)

	case StorageS3:
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", 3600),
			PublicBaseURL:          getString(config.Config, "public_base_url", ""),
			KeyPrefix:              getString(config.Config, "key_prefix", ""),
			EnableSSE:              getBool(config.Config, "enable_sse", false),
			SSEAlgorithm:           getString(config.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(config.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		if i, ok := value.(int); ok {
			return i
		}
		if str, ok := value.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
	}
	return defaultValue
}
