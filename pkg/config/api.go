package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment     string
	Addr            string
	LogLevel        string
	AllowedOrigins  []string
	DatabaseURL     string
	MigrationsDir   string
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RateLimitEnabled bool

	BlobEndpoint  string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobRegion    string
	BlobUseSSL    bool

	StagingDir          string
	UploadMaxBytes      int64
	EntryMaxBytes       int64
	IngestWorkers       int
	IngestGlobalWorkers int
	ShutdownTimeout     time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:     GetString("APP_ENV", "development"),
		Addr:            GetString("API_ADDR", ":8080"),
		LogLevel:        GetString("LOG_LEVEL", "info"),
		AllowedOrigins:  GetList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		DatabaseURL:     GetString("DATABASE_URL", "postgres://backendless:backendless@db:5432/backendless?sslmode=disable"),
		MigrationsDir:   GetString("DB_MIGRATIONS_DIR", ""),
		JWTSecret:       GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:  time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 60)) * time.Minute,
		RefreshTokenTTL: time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24*7)) * time.Hour,

		RedisAddr:        GetString("REDIS_ADDR", "redis:6379"),
		RedisPassword:    GetString("REDIS_PASSWORD", ""),
		RedisDB:          GetInt("REDIS_DB", 0),
		RateLimitEnabled: GetBool("RATE_LIMIT_ENABLED", true),

		BlobEndpoint:  GetString("BLOB_ENDPOINT", "minio:9000"),
		BlobAccessKey: GetString("BLOB_ACCESS_KEY", "minioadmin"),
		BlobSecretKey: GetString("BLOB_SECRET_KEY", "minioadmin"),
		BlobBucket:    GetString("BLOB_BUCKET", "backendless-static"),
		BlobRegion:    GetString("BLOB_REGION", ""),
		BlobUseSSL:    GetBool("BLOB_USE_SSL", false),

		StagingDir:          GetString("STAGING_DIR", "/tmp/backendless-uploads"),
		UploadMaxBytes:      GetInt64("UPLOAD_MAX_BYTES", 64<<20),
		EntryMaxBytes:       GetInt64("ENTRY_MAX_BYTES", 32<<20),
		IngestWorkers:       GetInt("INGEST_WORKERS", 4),
		IngestGlobalWorkers: GetInt("INGEST_GLOBAL_WORKERS", 16),
		ShutdownTimeout:     GetDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}
