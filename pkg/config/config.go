package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
)

type Config struct {
	Port                    string
	Env                     string
	LogLevel                slog.Level
	StoreBackend            string
	FirebaseCredentialsPath string
	FirebaseProjectID       string
	FirebaseStorageBucket   string
	MongoURI                string
	MongoDatabase           string
	PostgresUrl             string
	MetricsPort             string
	JWTSecret               string
	HeartbeatInterval       time.Duration
	TaskConcurrency         int
}

// Load reads the configuration from the environment after picking up an
// optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                parseLevel(getEnv("LOG_LEVEL", "info")),
		StoreBackend:            strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseStorageBucket:   getEnv("FIREBASE_STORAGE_BUCKET", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "folio"),
		PostgresUrl:             getEnv("POSTGRES_URL", ""),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		HeartbeatInterval:       getDuration("HEARTBEAT_INTERVAL", 60*time.Second),
		TaskConcurrency:         getInt("TASK_CONCURRENCY", 16),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
