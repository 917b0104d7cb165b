// Package config provides monitor configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds monitor configuration. Values come from env vars or defaults.
type Config struct {
	// --- Kubernetes ---

	// KubeConfig is the path to kubeconfig file (env: KUBECONFIG).
	// Empty means use in-cluster config.
	KubeConfig string

	// SparkMaster is the raw Spark master URL before transformation (env: SPARK_MASTER).
	SparkMaster string

	// Namespaces restricts list operations to this set of namespaces (env: NAMESPACES,
	// comma-separated). Empty means all namespaces.
	Namespaces []string

	// DefaultNamespace is the fallback namespace for operations that need one
	// (env: DEFAULT_NAMESPACE).
	DefaultNamespace string

	// OAuthTokenFile and OAuthTokenValue are mutually exclusive (env: OAUTH_TOKEN_FILE,
	// OAUTH_TOKEN_VALUE).
	OAuthTokenFile  string
	OAuthTokenValue string

	// CACertFile is the TLS trust anchor for the cluster API (env: CA_CERT_FILE).
	CACertFile string

	// ClientKeyFile / ClientCertFile hold the client TLS identity (env: CLIENT_KEY_FILE,
	// CLIENT_CERT_FILE).
	ClientKeyFile  string
	ClientCertFile string

	// --- App Monitor ---

	// AppLookupTimeout bounds tag→pod resolution (env: APP_LOOKUP_TIMEOUT). Default: 60s.
	AppLookupTimeout time.Duration

	// PollInterval is the sleep between polls of the Cluster Client (env: POLL_INTERVAL).
	// Default: 5s.
	PollInterval time.Duration

	// SparkLogsCacheSize bounds the driver log window, in lines (env: SPARK_LOGS_CACHE_SIZE).
	// Default: 200.
	SparkLogsCacheSize int

	// --- Leak Reaper ---

	// LeakageCheckInterval is the reaper's cycle period (env: LEAKAGE_CHECK_INTERVAL).
	// Default: 30s.
	LeakageCheckInterval time.Duration

	// LeakageCheckTimeout is how long an unresolved leaked tag survives before expiry
	// (env: LEAKAGE_CHECK_TIMEOUT). Default: 5m.
	LeakageCheckTimeout time.Duration

	// --- Spark UI Ingress ---

	// IngressCreate enables ingress provisioning (env: INGRESS_CREATE). Default: true.
	IngressCreate bool

	// IngressProtocol is "http" or "https" (env: INGRESS_PROTOCOL). Default: "http".
	IngressProtocol string

	// IngressHost is the ingress rule host (env: INGRESS_HOST).
	IngressHost string

	// IngressTLSSecretName binds the host to a TLS secret when protocol is https
	// (env: INGRESS_TLS_SECRET_NAME).
	IngressTLSSecretName string

	// IngressAdditionalAnnotations is parsed from "k=v;k=v" form (env:
	// INGRESS_ADDITIONAL_ANNOTATIONS).
	IngressAdditionalAnnotations map[string]string

	// IngressAdditionalConfSnippet, when set, is used as the value of the traefik
	// router.middlewares annotation on the Ingress (env: INGRESS_ADDITIONAL_CONF_SNIPPET).
	IngressAdditionalConfSnippet string

	// --- Grafana/Loki ---

	// GrafanaLokiEnabled toggles log-URL generation (env: GRAFANA_LOKI_ENABLED). Default: false.
	GrafanaLokiEnabled bool

	// GrafanaURL is the base Grafana URL (env: GRAFANA_URL).
	GrafanaURL string

	// GrafanaTimeRange is the LogQL explore time range, e.g. "1h" (env: GRAFANA_TIME_RANGE).
	// Default: "1h".
	GrafanaTimeRange string

	// GrafanaLokiDatasource is the Loki datasource name/uid (env: GRAFANA_LOKI_DATASOURCE).
	GrafanaLokiDatasource string

	// UIHistoryServerURL is the Spark history server base URL (env: UI_HISTORY_SERVER_URL).
	UIHistoryServerURL string

	// --- Leader Election (additive; spec only requires one reaper per process) ---

	// LeaderElection enables K8s lease-based leader election for the reaper
	// (env: ENABLE_LEADER_ELECTION).
	LeaderElection bool

	// LeaderElectionID is the name of the Lease resource used for leader election
	// (env: LEADER_ELECTION_ID). Default: "spark-monitor-leader".
	LeaderElectionID string

	// LeaderElectionIdentity is the unique identity of this monitor instance
	// (env: POD_NAME). Typically set from the Kubernetes downward API.
	// Default: hostname.
	LeaderElectionIdentity string

	// --- Monitor ---

	// LogLevel controls log verbosity: debug, info, warn, error (env: LOG_LEVEL).
	LogLevel string
}

// Parse reads configuration from environment variables.
func Parse() (*Config, error) {
	cfg := &Config{
		KubeConfig:  os.Getenv("KUBECONFIG"),
		SparkMaster: os.Getenv("SPARK_MASTER"),
		Namespaces:  envListOr("NAMESPACES", nil),

		DefaultNamespace: envOr("DEFAULT_NAMESPACE", "default"),

		OAuthTokenFile:  os.Getenv("OAUTH_TOKEN_FILE"),
		OAuthTokenValue: os.Getenv("OAUTH_TOKEN_VALUE"),
		CACertFile:      os.Getenv("CA_CERT_FILE"),
		ClientKeyFile:   os.Getenv("CLIENT_KEY_FILE"),
		ClientCertFile:  os.Getenv("CLIENT_CERT_FILE"),

		AppLookupTimeout:   envDurationOr("APP_LOOKUP_TIMEOUT", 60*time.Second),
		PollInterval:       envDurationOr("POLL_INTERVAL", 5*time.Second),
		SparkLogsCacheSize: envIntOr("SPARK_LOGS_CACHE_SIZE", 200),

		LeakageCheckInterval: envDurationOr("LEAKAGE_CHECK_INTERVAL", 30*time.Second),
		LeakageCheckTimeout:  envDurationOr("LEAKAGE_CHECK_TIMEOUT", 5*time.Minute),

		IngressCreate:                envBoolOr("INGRESS_CREATE", true),
		IngressProtocol:              envOr("INGRESS_PROTOCOL", "http"),
		IngressHost:                  os.Getenv("INGRESS_HOST"),
		IngressTLSSecretName:         os.Getenv("INGRESS_TLS_SECRET_NAME"),
		IngressAdditionalAnnotations: envPairsOr("INGRESS_ADDITIONAL_ANNOTATIONS"),
		IngressAdditionalConfSnippet: os.Getenv("INGRESS_ADDITIONAL_CONF_SNIPPET"),

		GrafanaLokiEnabled:    envBoolOr("GRAFANA_LOKI_ENABLED", false),
		GrafanaURL:            os.Getenv("GRAFANA_URL"),
		GrafanaTimeRange:      envOr("GRAFANA_TIME_RANGE", "1h"),
		GrafanaLokiDatasource: os.Getenv("GRAFANA_LOKI_DATASOURCE"),
		UIHistoryServerURL:    os.Getenv("UI_HISTORY_SERVER_URL"),

		LeaderElection:         envBoolOr("ENABLE_LEADER_ELECTION", false),
		LeaderElectionID:       envOr("LEADER_ELECTION_ID", "spark-monitor-leader"),
		LeaderElectionIdentity: envOr("POD_NAME", hostname()),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.OAuthTokenFile != "" && cfg.OAuthTokenValue != "" {
		return nil, fmt.Errorf("config: OAUTH_TOKEN_FILE and OAUTH_TOKEN_VALUE are mutually exclusive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envPairsOr parses "a=b;c=d" form into a map, per spec ingress_additional_annotations.
func envPairsOr(key string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return out
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
