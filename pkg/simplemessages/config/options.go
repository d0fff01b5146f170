package config

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-messages/pkg/simplemessages"
	"github.com/tendant/simple-messages/pkg/simplemessages/objectkey"
	"github.com/tendant/simple-messages/pkg/simplemessages/urlstrategy"
)

// WithPort sets the port the hosting server listens on.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return errors.New("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the deployment environment, e.g. "production".
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return errors.New("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase selects the submission store. For sqlite the url is a file
// path or ":memory:"; the memory store ignores it.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case DatabaseMemory:
			url = ""
		case DatabasePostgres, DatabaseSQLite:
			if url == "" {
				return fmt.Errorf("%s needs a database url", dbType)
			}
		default:
			return fmt.Errorf("unsupported database type %q (valid: %s, %s, %s)", dbType, DatabaseMemory, DatabasePostgres, DatabaseSQLite)
		}
		c.DatabaseType, c.DatabaseURL = dbType, url
		return nil
	}
}

// WithDatabaseSchema sets the Postgres schema holding the submission tables.
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate controls whether BuildService applies migrations.
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithDefaultStorage names the backend new media is written to.
func WithDefaultStorage(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return errors.New("default storage backend name cannot be empty")
		}
		c.DefaultStorageBackend = name
		return nil
	}
}

// WithMemoryStorage registers an in-process media store, named "memory"
// unless name is set. It does not change the default backend.
func WithMemoryStorage(name string) Option {
	return func(c *ServerConfig) error {
		c.useStorage(StorageBackendConfig{Name: orDefault(name, StorageMemory), Type: StorageMemory}, false)
		return nil
	}
}

// WithFilesystemStorage stores media under baseDir and makes that backend
// the default. urlPrefix is where the directory is served, if anywhere.
func WithFilesystemStorage(name, baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return errors.New("filesystem base directory cannot be empty")
		}
		settings := map[string]interface{}{"base_dir": baseDir}
		if urlPrefix != "" {
			settings["url_prefix"] = urlPrefix
		}
		c.useStorage(StorageBackendConfig{Name: orDefault(name, StorageFS), Type: StorageFS, Config: settings}, true)
		return nil
	}
}

// WithS3Storage stores media in an S3 bucket and makes that backend the
// default. The WithS3* options below refine it by name.
func WithS3Storage(name, bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return errors.New("S3 bucket cannot be empty")
		}
		settings := map[string]interface{}{
			"bucket": bucket,
			"region": orDefault(region, "us-east-1"),
		}
		c.useStorage(StorageBackendConfig{Name: orDefault(name, StorageS3), Type: StorageS3, Config: settings}, true)
		return nil
	}
}

// WithS3Credentials sets static credentials instead of the AWS default chain.
func WithS3Credentials(name, accessKeyID, secretAccessKey string) Option {
	return s3Setting(name, map[string]interface{}{
		"access_key_id":     accessKeyID,
		"secret_access_key": secretAccessKey,
	})
}

// WithS3Endpoint targets an S3 compatible service such as MinIO.
func WithS3Endpoint(name, endpoint string, usePathStyle bool) Option {
	return s3Setting(name, map[string]interface{}{
		"endpoint":       endpoint,
		"use_path_style": usePathStyle,
	})
}

// WithS3PublicBaseURL serves media from a public bucket or CDN origin
// instead of presigned URLs.
func WithS3PublicBaseURL(name, baseURL string) Option {
	return s3Setting(name, map[string]interface{}{"public_base_url": baseURL})
}

// WithS3KeyPrefix keeps media under a prefix of a shared bucket.
func WithS3KeyPrefix(name, prefix string) Option {
	return s3Setting(name, map[string]interface{}{"key_prefix": prefix})
}

// s3Setting merges values into an S3 backend declared earlier by WithS3Storage.
func s3Setting(name string, values map[string]interface{}) Option {
	return func(c *ServerConfig) error {
		name = orDefault(name, StorageS3)
		for _, backend := range c.StorageBackends {
			if backend.Name != name || backend.Type != StorageS3 {
				continue
			}
			for k, v := range values {
				backend.Config[k] = v
			}
			return nil
		}
		return fmt.Errorf("S3 storage backend %q is not configured", name)
	}
}

// WithURLStrategy selects how feed media URLs are built: "storage-delegated",
// "cdn" or "media-proxy". baseURL is the CDN or API base URL.
func WithURLStrategy(strategy, baseURL string) Option {
	return func(c *ServerConfig) error {
		t, err := urlstrategy.ParseType(strategy)
		if err != nil {
			return err
		}
		if t.NeedsBaseURL() && baseURL == "" {
			return fmt.Errorf("%s url strategy needs a base url", t)
		}
		c.URLStrategy, c.MediaBaseURL = strategy, baseURL
		return nil
	}
}

// WithObjectKeyGenerator selects the media key layout: "git-like", "flat"
// or "submission".
func WithObjectKeyGenerator(generator string) Option {
	return func(c *ServerConfig) error {
		if _, err := objectkey.New(generator); err != nil {
			return err
		}
		c.ObjectKeyGenerator = generator
		return nil
	}
}

// WithLimits overrides field and media limits. Zero fields keep the defaults.
func WithLimits(limits simplemessages.Limits) Option {
	return func(c *ServerConfig) error {
		c.Limits = limits.WithDefaults()
		return nil
	}
}

// WithPlaceholderURL sets the image shown for entries without media.
func WithPlaceholderURL(url string) Option {
	return func(c *ServerConfig) error {
		c.PlaceholderURL = url
		return nil
	}
}

// WithEventLogging toggles the slog event sink.
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// useStorage registers backend, replacing one with the same name, and
// optionally makes it the default for new uploads.
func (c *ServerConfig) useStorage(backend StorageBackendConfig, makeDefault bool) {
	c.StorageBackends = upsertStorageBackend(c.StorageBackends, backend)
	if makeDefault {
		c.DefaultStorageBackend = backend.Name
	}
}

func upsertStorageBackend(backends []StorageBackendConfig, backend StorageBackendConfig) []StorageBackendConfig {
	if backend.Config == nil {
		backend.Config = map[string]interface{}{}
	}
	for i := range backends {
		if backends[i].Name == backend.Name {
			backends[i] = backend
			return backends
		}
	}
	return append(backends, backend)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
