package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds startup configuration. Values that may change while the
// process is running (upload endpoint, credentials) are not stored here;
// they are read live through a Source.
type Config struct {
	ClarifaiAddr string     // Clarifai gRPC API address
	LogLevel     slog.Level // Parsed slog level
	TimeoutSec   int        // Generation call timeout in seconds
	logLevelStr  string     // Temporary storage for the flag string
}

// LoadConfig loads configuration from command-line flags. A .env file in
// the working directory is folded into the process environment first, so
// provider credentials and upload settings can be kept there.
func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := &Config{}

	// Use a new FlagSet so tests running in parallel don't trip over the
	// global flag registry.
	fs := flag.NewFlagSet("imagegen-mcp-server", flag.ContinueOnError)
	fs.StringVar(&cfg.ClarifaiAddr, "clarifai-addr", "api.clarifai.com:443", "Clarifai gRPC API address")
	fs.StringVar(&cfg.logLevelStr, "log-level", "INFO", "Logging level (DEBUG, INFO, WARN, ERROR)")
	fs.IntVar(&cfg.TimeoutSec, "timeout", 120, "Generation call timeout in seconds")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("error parsing flags: %w", err)
	}

	switch strings.ToUpper(cfg.logLevelStr) {
	case "DEBUG":
		cfg.LogLevel = slog.LevelDebug
	case "INFO":
		cfg.LogLevel = slog.LevelInfo
	case "WARN":
		cfg.LogLevel = slog.LevelWarn
	case "ERROR":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	return cfg, nil
}

// Source supplies environment-style configuration values. Implementations
// must re-read the underlying store on every call: credentials and the
// upload endpoint may change between requests in long-running hosts, and
// availability is always derived, never cached.
type Source interface {
	Getenv(key string) string
}

// OSEnv reads from the real process environment.
type OSEnv struct{}

func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

// Static is a fixed key/value Source for tests.
type Static map[string]string

func (s Static) Getenv(key string) string { return s[key] }

// Environment variables controlling the image upload step.
const (
	EnvUploadURL       = "IMAGE_UPLOAD_URL"
	EnvUploadExpires   = "IMAGE_UPLOAD_EXPIRES"
	EnvUploadUserAgent = "IMAGE_UPLOAD_USER_AGENT"
)

// DefaultUserAgent identifies upload requests when no override is set.
const DefaultUserAgent = "imagegen-mcp-server/0.1.0"

// UploadURL returns the configured upload endpoint, empty if unset.
func UploadURL(src Source) string {
	return strings.TrimSpace(src.Getenv(EnvUploadURL))
}

// UploadEnabled reports whether base64 images should be re-hosted.
// An absent or empty endpoint disables the upload step entirely.
func UploadEnabled(src Source) bool {
	return UploadURL(src) != ""
}

// UploadExpires returns the upload expiration in hours. Unset or invalid
// values fall back to 1.
func UploadExpires(src Source) int {
	raw := strings.TrimSpace(src.Getenv(EnvUploadExpires))
	if raw == "" {
		return 1
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return 1
	}
	return hours
}

// UploadUserAgent returns the User-Agent header for upload requests.
func UploadUserAgent(src Source) string {
	if ua := strings.TrimSpace(src.Getenv(EnvUploadUserAgent)); ua != "" {
		return ua
	}
	return DefaultUserAgent
}
