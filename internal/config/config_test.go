package config

import (
	"os"
	"testing"
	"time"
)

// setEnvs sets multiple environment variables via t.Setenv, which restores
// them when the test ends.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// --- envOr tests ---

func TestEnvOr_Set(t *testing.T) {
	t.Setenv("TEST_ENV_OR", "custom")
	if got := envOr("TEST_ENV_OR", "default"); got != "custom" {
		t.Errorf("envOr = %s, want custom", got)
	}
}

func TestEnvOr_Unset(t *testing.T) {
	os.Unsetenv("TEST_ENV_OR_UNSET")
	if got := envOr("TEST_ENV_OR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("envOr = %s, want fallback", got)
	}
}

func TestEnvOr_Empty(t *testing.T) {
	t.Setenv("TEST_ENV_OR_EMPTY", "")
	if got := envOr("TEST_ENV_OR_EMPTY", "fallback"); got != "fallback" {
		t.Errorf("envOr with empty value = %s, want fallback", got)
	}
}

// --- envIntOr tests ---

func TestEnvIntOr_ValidInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := envIntOr("TEST_INT", 0); got != 42 {
		t.Errorf("envIntOr = %d, want 42", got)
	}
}

func TestEnvIntOr_InvalidInt(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "notanumber")
	if got := envIntOr("TEST_INT_BAD", 5); got != 5 {
		t.Errorf("envIntOr with invalid = %d, want 5", got)
	}
}

func TestEnvIntOr_Unset(t *testing.T) {
	os.Unsetenv("TEST_INT_UNSET")
	if got := envIntOr("TEST_INT_UNSET", 10); got != 10 {
		t.Errorf("envIntOr unset = %d, want 10", got)
	}
}

// --- envBoolOr tests ---

func TestEnvBoolOr_True(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if got := envBoolOr("TEST_BOOL", false); !got {
		t.Error("envBoolOr = false, want true")
	}
}

func TestEnvBoolOr_Invalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "yes")
	if got := envBoolOr("TEST_BOOL_BAD", true); !got {
		t.Error("envBoolOr with invalid should return fallback true")
	}
}

// --- envDurationOr tests ---

func TestEnvDurationOr_Valid(t *testing.T) {
	t.Setenv("TEST_DUR", "30s")
	if got := envDurationOr("TEST_DUR", time.Minute); got != 30*time.Second {
		t.Errorf("envDurationOr = %v, want 30s", got)
	}
}

func TestEnvDurationOr_Invalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "notaduration")
	if got := envDurationOr("TEST_DUR_BAD", 2*time.Minute); got != 2*time.Minute {
		t.Errorf("envDurationOr with invalid = %v, want 2m", got)
	}
}

// --- envListOr tests ---

func TestEnvListOr_CommaSeparated(t *testing.T) {
	t.Setenv("TEST_LIST", "ns-a, ns-b,ns-c")
	got := envListOr("TEST_LIST", nil)
	want := []string{"ns-a", "ns-b", "ns-c"}
	if len(got) != len(want) {
		t.Fatalf("envListOr = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("envListOr[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestEnvListOr_Unset(t *testing.T) {
	os.Unsetenv("TEST_LIST_UNSET")
	if got := envListOr("TEST_LIST_UNSET", nil); got != nil {
		t.Errorf("envListOr unset = %v, want nil", got)
	}
}

// --- envPairsOr tests ---

func TestEnvPairsOr_Parses(t *testing.T) {
	t.Setenv("TEST_PAIRS", "a=b;c=d")
	got := envPairsOr("TEST_PAIRS")
	if got["a"] != "b" || got["c"] != "d" {
		t.Errorf("envPairsOr = %v, want a=b,c=d", got)
	}
}

func TestEnvPairsOr_Unset(t *testing.T) {
	os.Unsetenv("TEST_PAIRS_UNSET")
	if got := envPairsOr("TEST_PAIRS_UNSET"); got != nil {
		t.Errorf("envPairsOr unset = %v, want nil", got)
	}
}

// --- hostname tests ---

func TestHostname_ReturnsNonEmpty(t *testing.T) {
	h := hostname()
	if h == "" {
		t.Error("hostname() returned empty string")
	}
}

// --- Parse tests ---

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"KUBECONFIG", "SPARK_MASTER", "NAMESPACES", "DEFAULT_NAMESPACE",
		"OAUTH_TOKEN_FILE", "OAUTH_TOKEN_VALUE", "CA_CERT_FILE",
		"CLIENT_KEY_FILE", "CLIENT_CERT_FILE",
		"APP_LOOKUP_TIMEOUT", "POLL_INTERVAL", "SPARK_LOGS_CACHE_SIZE",
		"LEAKAGE_CHECK_INTERVAL", "LEAKAGE_CHECK_TIMEOUT",
		"INGRESS_CREATE", "INGRESS_PROTOCOL", "INGRESS_HOST",
		"INGRESS_TLS_SECRET_NAME", "INGRESS_ADDITIONAL_ANNOTATIONS",
		"INGRESS_ADDITIONAL_CONF_SNIPPET",
		"GRAFANA_LOKI_ENABLED", "GRAFANA_URL", "GRAFANA_TIME_RANGE",
		"GRAFANA_LOKI_DATASOURCE", "UI_HISTORY_SERVER_URL",
		"ENABLE_LEADER_ELECTION", "LEADER_ELECTION_ID", "POD_NAME", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestParse_Defaults(t *testing.T) {
	clearAllEnv(t)

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.DefaultNamespace != "default" {
		t.Errorf("DefaultNamespace = %s, want default", cfg.DefaultNamespace)
	}
	if cfg.Namespaces != nil {
		t.Errorf("Namespaces = %v, want nil (all namespaces)", cfg.Namespaces)
	}
	if cfg.AppLookupTimeout != 60*time.Second {
		t.Errorf("AppLookupTimeout = %v, want 60s", cfg.AppLookupTimeout)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.SparkLogsCacheSize != 200 {
		t.Errorf("SparkLogsCacheSize = %d, want 200", cfg.SparkLogsCacheSize)
	}
	if cfg.LeakageCheckInterval != 30*time.Second {
		t.Errorf("LeakageCheckInterval = %v, want 30s", cfg.LeakageCheckInterval)
	}
	if cfg.LeakageCheckTimeout != 5*time.Minute {
		t.Errorf("LeakageCheckTimeout = %v, want 5m", cfg.LeakageCheckTimeout)
	}
	if !cfg.IngressCreate {
		t.Error("IngressCreate should default to true")
	}
	if cfg.IngressProtocol != "http" {
		t.Errorf("IngressProtocol = %s, want http", cfg.IngressProtocol)
	}
	if cfg.GrafanaLokiEnabled {
		t.Error("GrafanaLokiEnabled should default to false")
	}
	if cfg.GrafanaTimeRange != "1h" {
		t.Errorf("GrafanaTimeRange = %s, want 1h", cfg.GrafanaTimeRange)
	}
	if cfg.LeaderElection {
		t.Error("LeaderElection should default to false")
	}
	if cfg.LeaderElectionID != "spark-monitor-leader" {
		t.Errorf("LeaderElectionID = %s, want spark-monitor-leader", cfg.LeaderElectionID)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
}

func TestParse_CustomValues(t *testing.T) {
	clearAllEnv(t)
	setEnvs(t, map[string]string{
		"SPARK_MASTER":            "k8s://https://10.0.0.1:443",
		"NAMESPACES":              "spark-a,spark-b",
		"APP_LOOKUP_TIMEOUT":      "90s",
		"POLL_INTERVAL":           "1s",
		"LEAKAGE_CHECK_INTERVAL":  "10s",
		"LEAKAGE_CHECK_TIMEOUT":   "1m",
		"INGRESS_PROTOCOL":        "https",
		"INGRESS_HOST":            "spark.example.com",
		"GRAFANA_LOKI_ENABLED":    "true",
		"GRAFANA_URL":             "https://grafana.example.com",
		"ENABLE_LEADER_ELECTION":  "true",
		"LEADER_ELECTION_ID":      "custom-leader",
		"LOG_LEVEL":               "debug",
	})

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.SparkMaster != "k8s://https://10.0.0.1:443" {
		t.Errorf("SparkMaster = %s", cfg.SparkMaster)
	}
	if len(cfg.Namespaces) != 2 || cfg.Namespaces[0] != "spark-a" || cfg.Namespaces[1] != "spark-b" {
		t.Errorf("Namespaces = %v, want [spark-a spark-b]", cfg.Namespaces)
	}
	if cfg.AppLookupTimeout != 90*time.Second {
		t.Errorf("AppLookupTimeout = %v, want 90s", cfg.AppLookupTimeout)
	}
	if cfg.IngressProtocol != "https" {
		t.Errorf("IngressProtocol = %s, want https", cfg.IngressProtocol)
	}
	if !cfg.GrafanaLokiEnabled {
		t.Error("GrafanaLokiEnabled should be true")
	}
	if !cfg.LeaderElection {
		t.Error("LeaderElection should be true")
	}
	if cfg.LeaderElectionID != "custom-leader" {
		t.Errorf("LeaderElectionID = %s, want custom-leader", cfg.LeaderElectionID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
}

func TestParse_OAuthConflict(t *testing.T) {
	clearAllEnv(t)
	setEnvs(t, map[string]string{
		"OAUTH_TOKEN_FILE":  "/var/run/secrets/token",
		"OAUTH_TOKEN_VALUE": "abc123",
	})

	if _, err := Parse(); err == nil {
		t.Error("Parse() should fail when both OAUTH_TOKEN_FILE and OAUTH_TOKEN_VALUE are set")
	}
}

func TestParse_LeaderElectionIdentity_FromPodName(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("POD_NAME", "monitor-abc-xyz")
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.LeaderElectionIdentity != "monitor-abc-xyz" {
		t.Errorf("LeaderElectionIdentity = %s, want monitor-abc-xyz", cfg.LeaderElectionIdentity)
	}
}

func TestParse_LeaderElectionIdentity_DefaultsToHostname(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	expected := hostname()
	if cfg.LeaderElectionIdentity != expected {
		t.Errorf("LeaderElectionIdentity = %s, want hostname %s", cfg.LeaderElectionIdentity, expected)
	}
}
