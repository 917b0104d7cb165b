// Command monitor is the Spark driver lifecycle monitor daemon: it wires
// the Cluster Client, the process-wide Leak Reaper, and a health/version
// HTTP endpoint. Submitting applications and driving individual Monitor
// lifecycles is the caller's concern (see internal/monitor); this binary
// owns only what must run continuously for the lifetime of the process.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"spark-monitor/internal/clientfactory"
	"spark-monitor/internal/config"
	"spark-monitor/internal/reaper"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting spark monitor",
		"namespaces", cfg.Namespaces,
		"spark_master", cfg.SparkMaster)

	if err := clientfactory.Init(cfg, logger); err != nil {
		logger.Error("failed to build cluster client", "error", err)
		os.Exit(1)
	}
	cluster := clientfactory.Get()

	table := reaper.NewLeakTable()
	rp := reaper.New(cluster, table, cfg.LeakageCheckInterval, cfg.LeakageCheckTimeout, logger)

	startHealthServer(logger, rp, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	runFn := func(ctx context.Context) {
		logger.Info("leak reaper running",
			"check_interval", cfg.LeakageCheckInterval,
			"check_timeout", cfg.LeakageCheckTimeout)
		rp.Run(ctx)
	}

	var k8sClient kubernetes.Interface
	if cfg.LeaderElection {
		built, err := restClientForLeaderElection(cfg)
		if err != nil {
			logger.Error("failed to build k8s client for leader election", "error", err)
			os.Exit(1)
		}
		k8sClient = built
		runLeaderElection(ctx, logger, cfg, k8sClient, runFn)
	} else {
		runFn(ctx)
	}

	logger.Info("spark monitor stopped")
}

// runLeaderElection mirrors the additive leader-election wiring: only the
// elected leader runs the Leak Reaper loop. Losing leadership exits the
// process so Kubernetes restarts it to rejoin the election.
func runLeaderElection(ctx context.Context, logger *slog.Logger, cfg *config.Config, k8sClient kubernetes.Interface, runFn func(ctx context.Context)) {
	id := cfg.LeaderElectionIdentity
	logger.Info("starting leader election", "id", id, "lease", cfg.LeaderElectionID)

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      cfg.LeaderElectionID,
			Namespace: cfg.DefaultNamespace,
		},
		Client: k8sClient.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: id,
		},
	}

	leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   15 * time.Second,
		RenewDeadline:   10 * time.Second,
		RetryPeriod:     2 * time.Second,
		ReleaseOnCancel: true,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				logger.Info("elected as leader, starting reaper")
				runFn(ctx)
			},
			OnStoppedLeading: func() {
				logger.Error("lost leader election, exiting")
				os.Exit(1)
			},
			OnNewLeader: func(identity string) {
				if identity == id {
					return
				}
				logger.Info("new leader elected", "leader", identity)
			},
		},
	})
}

func restClientForLeaderElection(cfg *config.Config) (kubernetes.Interface, error) {
	restCfg, err := clientfactory.BuildRestConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building rest config: %w", err)
	}
	return kubernetes.NewForConfig(restCfg)
}

func startHealthServer(logger *slog.Logger, rp *reaper.Reaper, cfg *config.Config) {
	addr := os.Getenv("HEALTH_LISTEN_ADDR")
	if addr == "" {
		addr = ":8091"
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, version)
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"version": version,
			"commit":  commit,
		})
	})
	mux.HandleFunc("/metrics/reaper", func(w http.ResponseWriter, _ *http.Request) {
		m := rp.Metrics()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health/version server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", "error", err)
		}
	}()
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
