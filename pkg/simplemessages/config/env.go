package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
// Unset variables leave the current value alone.
//
// Server:
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//
// Database:
//
//	DATABASE_URL - one of:
//	               - "memory" - In-memory repository (default)
//	               - "postgres://..." or "postgresql://..." - PostgreSQL
//	               - "sqlite:///path/to/db.sqlite" or "sqlite://:memory:" - SQLite
//	DATABASE_SCHEMA - Postgres schema (default: "messages")
//	AUTO_MIGRATE - Apply migrations at startup (default: true)
//
// Storage:
//
//	STORAGE_URL - one of:
//	              - "memory://" - In-memory storage (default)
//	              - "file:///path/to/data" - Filesystem storage
//	              - "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
//	MEDIA_BASE_URL - CDN or API base URL used by URL_STRATEGY
//	URL_STRATEGY - "storage-delegated" (default), "cdn" or "media-proxy"
//	OBJECT_KEY_GENERATOR - "git-like" (default), "flat" or "submission"
//	MAX_MEDIA_BYTES - Upload size limit (default: 5MB)
//	PLACEHOLDER_URL - Image shown for entries without media
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyStorageEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "MEDIA_BASE_URL"); ok && v != "" {
			c.MediaBaseURL = v
		}
		if v, ok := lookupEnv(prefix, "URL_STRATEGY"); ok && v != "" {
			c.URLStrategy = v
		}
		if v, ok := lookupEnv(prefix, "OBJECT_KEY_GENERATOR"); ok && v != "" {
			c.ObjectKeyGenerator = v
		}
		if v, ok := lookupEnv(prefix, "PLACEHOLDER_URL"); ok && v != "" {
			c.PlaceholderURL = v
		}

		maxBytes, ok, err := parseIntEnv(prefix, "MAX_MEDIA_BYTES")
		if err != nil {
			return err
		}
		if ok {
			if maxBytes <= 0 {
				return fmt.Errorf("%sMAX_MEDIA_BYTES must be positive, got: %d", prefix, maxBytes)
			}
			c.Limits.MaxMediaBytes = int64(maxBytes)
		}

		migrate, ok, err := parseBoolEnv(prefix, "AUTO_MIGRATE")
		if err != nil {
			return err
		}
		if ok {
			c.AutoMigrate = migrate
		}

		return nil
	}
}

// applyDatabaseEnv applies database configuration from environment
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	if schema, ok := lookupEnv(prefix, "DATABASE_SCHEMA"); ok && schema != "" {
		c.DBSchema = schema
	}

	dbURL, ok := lookupEnv(prefix, "DATABASE_URL")
	if !ok || dbURL == "" {
		return nil
	}

	switch {
	case dbURL == "memory":
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "sqlite://"):
		path := strings.TrimPrefix(dbURL, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = DatabaseSQLite
		c.DatabaseURL = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'sqlite://...')", dbURL)
	}
	return nil
}

// applyStorageEnv applies storage configuration from environment
func applyStorageEnv(prefix string, c *ServerConfig) error {
	storageURL, ok := lookupEnv(prefix, "STORAGE_URL")
	if !ok || storageURL == "" {
		return nil
	}

	if storageURL == "memory" || storageURL == "memory://" {
		c.useStorage(StorageBackendConfig{Name: StorageMemory, Type: StorageMemory}, true)
		return nil
	}

	u, err := url.Parse(storageURL)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		return applyFilesystemStorage(u, c)
	case "s3":
		return applyS3Storage(u, c)
	}
	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
}

// applyFilesystemStorage configures filesystem storage from URL
// Format: file:///path/to/data
func applyFilesystemStorage(u *url.URL, c *ServerConfig) error {
	path := u.Host + u.Path
	if path == "" {
		return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
	}

	backend := StorageBackendConfig{
		Name: StorageFS,
		Type: StorageFS,
		Config: map[string]interface{}{
			"base_dir": path,
		},
	}
	if prefix := u.Query().Get("url_prefix"); prefix != "" {
		backend.Config["url_prefix"] = prefix
	}

	c.useStorage(backend, true)
	return nil
}

// applyS3Storage configures S3 storage from URL
// Format: s3://bucket[/prefix]?region=us-east-1&endpoint=http://localhost:9000&path_style=true
func applyS3Storage(u *url.URL, c *ServerConfig) error {
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	query := u.Query()
	backend := StorageBackendConfig{
		Name: StorageS3,
		Type: StorageS3,
		Config: map[string]interface{}{
			"bucket": u.Host,
			"region": "us-east-1",
		},
	}

	if prefix := strings.Trim(u.Path, "/"); prefix != "" {
		backend.Config["key_prefix"] = prefix
	}
	if region := query.Get("region"); region != "" {
		backend.Config["region"] = region
	} else if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" {
		backend.Config["region"] = region
	}
	if endpoint := query.Get("endpoint"); endpoint != "" {
		backend.Config["endpoint"] = endpoint
	}
	if pathStyle := query.Get("path_style"); pathStyle != "" {
		b, err := strconv.ParseBool(pathStyle)
		if err != nil {
			return fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
		backend.Config["use_path_style"] = b
	}
	if public := query.Get("public_base_url"); public != "" {
		backend.Config["public_base_url"] = public
	}

	// Check for AWS credentials in environment
	if accessKey, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok && accessKey != "" {
		backend.Config["access_key_id"] = accessKey
	}
	if secretKey, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok && secretKey != "" {
		backend.Config["secret_access_key"] = secretKey
	}

	c.useStorage(backend, true)
	return nil
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
