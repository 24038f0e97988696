// Package config loads the tracker service configuration.
//
// Values come from built-in defaults, then an optional YAML file named by
// TRACKER_CONFIG_FILE, then TRACKER_* environment variables.
//
// Server settings:
//
//	TRACKER_HOST="0.0.0.0"
//	TRACKER_PORT="8080"
//	TRACKER_SHUTDOWN_TIMEOUT="30s"
//
// Store settings:
//
//	TRACKER_STORE_BACKEND="postgres"  # postgres, memory
//	TRACKER_POSTGRES_URL="postgres://localhost/tracker?sslmode=disable"
//	TRACKER_AUTO_MIGRATE="true"
//
// Cache settings (a TTL of 0 disables the cache):
//
//	TRACKER_CACHE_BACKEND="redis"  # none, memory, redis
//	TRACKER_CACHE_TTL="30s"
//	TRACKER_REDIS_URL="redis://localhost:6379/0"
//
// Observability settings:
//
//	TRACKER_LOG_LEVEL="info"
//	TRACKER_LOG_FORMAT="json"
//	TRACKER_OTEL_ENABLED="false"
//	TRACKER_OTEL_ENDPOINT="localhost:4317"
package config
