package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	SslCertPath  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string
	JWTSecret    string

	IngestWorkers      int
	JobStaleAfter      time.Duration
	SweepInterval      time.Duration
	ChunkTargetTokens  int
	ChunkOverlapTokens int
	EmbedBatchSize     int
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "citevault-docs"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 1536),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		IngestWorkers:      getEnvInt("INGEST_WORKERS", 4),
		JobStaleAfter:      time.Duration(getEnvInt("JOB_STALE_AFTER_MIN", 30)) * time.Minute,
		SweepInterval:      time.Duration(getEnvInt("JOB_SWEEP_INTERVAL_MIN", 5)) * time.Minute,
		ChunkTargetTokens:  getEnvInt("CHUNK_TARGET_TOKENS", 500),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 50),
		EmbedBatchSize:     getEnvInt("EMBED_BATCH_SIZE", 16),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}
