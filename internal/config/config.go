// Package config loads configuration from environment variables and, for
// the backend function settings, an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Functions holds the per-deployment settings the backend functions read.
// Keys mirror the component configuration of the host platform.
type Functions struct {
	Token                      string `yaml:"token"`
	EnvironmentID              string `yaml:"environment_id"`
	DossierPerProjectConnector string `yaml:"dossier_per_project_connector"`
	FilesPerDossierConnector   string `yaml:"files_per_dossier_connector"`
	ProjectIDCustomFieldID     string `yaml:"project_id_custom_field_id"`
	ZapierWebhookURL           string `yaml:"zapier_webhook_url"`

	// AFASBaseURL overrides https://{environment_id}.rest.afas.online.
	AFASBaseURL string `yaml:"afas_base_url"`
}

// Server holds the functions server configuration.
type Server struct {
	ListenAddr  string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// ContextSecret verifies the component context tokens minted by the host.
	ContextSecret string

	RequestTimeout time.Duration

	Functions Functions
}

// Client holds the session (CLI) configuration.
type Client struct {
	HostURL        string
	ContextToken   string
	ResolveTimeout time.Duration
	RequestTimeout time.Duration

	LogLevel  string
	LogFormat string

	// Save target ("local" or "s3", default: "local")
	SaveBackend string
	SaveDir     string

	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string

	// S3CreateBucket creates the bucket when it does not exist yet.
	S3CreateBucket bool
}

// Load reads the functions server configuration. FUNCTIONS_CONFIG may point
// at a YAML file; individual FUNCTIONS_* variables override its values.
func Load() (*Server, error) {
	cfg := &Server{
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:    envOr("METRICS_ADDR", ":9090"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "json"),
		TLSCertFile:    envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:     envOr("TLS_KEY_FILE", ""),
		ContextSecret:  envOr("CONTEXT_SECRET", ""),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
	}

	if path := os.Getenv("FUNCTIONS_CONFIG"); path != "" {
		fc, err := LoadFunctionsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Functions = *fc
	}
	cfg.Functions.applyEnv()

	if cfg.ContextSecret == "" {
		return nil, fmt.Errorf("CONTEXT_SECRET is required")
	}

	return cfg, nil
}

// LoadFunctionsFile parses a YAML function settings file.
func LoadFunctionsFile(path string) (*Functions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read functions config: %w", err)
	}
	var fc Functions
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse functions config %s: %w", path, err)
	}
	return &fc, nil
}

func (f *Functions) applyEnv() {
	f.Token = envOr("FUNCTIONS_TOKEN", f.Token)
	f.EnvironmentID = envOr("FUNCTIONS_ENVIRONMENT_ID", f.EnvironmentID)
	f.DossierPerProjectConnector = envOr("FUNCTIONS_DOSSIER_PER_PROJECT_CONNECTOR", f.DossierPerProjectConnector)
	f.FilesPerDossierConnector = envOr("FUNCTIONS_FILES_PER_DOSSIER_CONNECTOR", f.FilesPerDossierConnector)
	f.ProjectIDCustomFieldID = envOr("FUNCTIONS_PROJECT_ID_CUSTOM_FIELD_ID", f.ProjectIDCustomFieldID)
	f.ZapierWebhookURL = envOr("FUNCTIONS_ZAPIER_WEBHOOK_URL", f.ZapierWebhookURL)
	f.AFASBaseURL = envOr("FUNCTIONS_AFAS_BASE_URL", f.AFASBaseURL)
}

// LoadClient reads the session configuration with defaults.
func LoadClient() *Client {
	return &Client{
		HostURL:        envOr("HOST_URL", "http://localhost:8080"),
		ContextToken:   envOr("CONTEXT_TOKEN", ""),
		ResolveTimeout: envDuration("RESOLVE_TIMEOUT", 2*time.Second),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", 30*time.Second),
		LogLevel:       envOr("LOG_LEVEL", "warn"),
		LogFormat:      envOr("LOG_FORMAT", "console"),
		SaveBackend:    envOr("SAVE_BACKEND", "local"),
		SaveDir:        envOr("SAVE_DIR", "."),
		S3Endpoint:     envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:       envOr("S3_BUCKET", "docconnector"),
		S3Prefix:       envOr("S3_PREFIX", ""),
		S3AccessKey:    envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:    envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:       envOr("S3_REGION", "us-east-1"),
		S3CreateBucket: envBool("S3_CREATE_BUCKET", false),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envDuration accepts Go durations ("2s") or plain milliseconds ("2000").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
