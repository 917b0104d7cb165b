// Package clientfactory builds the Cluster Client from configuration:
// master URL transform, OAuth/TLS credentials, and a lazy process-wide
// singleton so concurrent callers share one client. The configured
// DefaultNamespace is not applied to the client built here.
package clientfactory

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"spark-monitor/internal/config"
	"spark-monitor/internal/k8sclient"
)

// TransformMasterURL strips a leading "k8s://" prefix and, if the result
// still lacks an http(s) scheme, prepends "https://". Applying it twice is
// equal to applying it once.
func TransformMasterURL(master string) string {
	master = strings.TrimPrefix(master, "k8s://")
	if !strings.HasPrefix(master, "http://") && !strings.HasPrefix(master, "https://") {
		master = "https://" + master
	}
	return master
}

// BuildRestConfig constructs a *rest.Config from cfg, following the options
// listed in SPEC_FULL §4.7.
func BuildRestConfig(cfg *config.Config) (*rest.Config, error) {
	if cfg.OAuthTokenFile != "" && cfg.OAuthTokenValue != "" {
		return nil, fmt.Errorf("clientfactory: oauth_token_file and oauth_token_value are mutually exclusive")
	}

	var restCfg *rest.Config
	var err error
	if cfg.KubeConfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfig)
	} else if cfg.SparkMaster != "" {
		restCfg, err = rest.InClusterConfig()
		if err == nil {
			restCfg.Host = TransformMasterURL(cfg.SparkMaster)
		}
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("clientfactory: build rest config: %w", err)
	}

	if cfg.OAuthTokenValue != "" {
		restCfg.BearerToken = cfg.OAuthTokenValue
	} else if cfg.OAuthTokenFile != "" {
		token, err := os.ReadFile(cfg.OAuthTokenFile)
		if err != nil {
			return nil, fmt.Errorf("clientfactory: read oauth token file: %w", err)
		}
		restCfg.BearerToken = strings.TrimSpace(string(token))
	}

	if cfg.CACertFile != "" {
		restCfg.TLSClientConfig.CAFile = cfg.CACertFile
	}
	if cfg.ClientKeyFile != "" {
		restCfg.TLSClientConfig.KeyFile = cfg.ClientKeyFile
	}
	if cfg.ClientCertFile != "" {
		restCfg.TLSClientConfig.CertFile = cfg.ClientCertFile
	}

	return restCfg, nil
}

// Build constructs a ClusterClient from cfg: a rest.Config, a
// kubernetes.Interface, and the k8sclient.Client wrapping it.
func Build(cfg *config.Config, log *slog.Logger) (k8sclient.ClusterClient, error) {
	restCfg, err := BuildRestConfig(cfg)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("clientfactory: build clientset: %w", err)
	}
	return k8sclient.New(clientset, cfg.Namespaces, log), nil
}

var (
	once     sync.Once
	instance k8sclient.ClusterClient
	initErr  error
	ready    = make(chan struct{})
)

// Init constructs the process-wide Cluster Client singleton exactly once.
func Init(cfg *config.Config, log *slog.Logger) error {
	once.Do(func() {
		instance, initErr = Build(cfg, log)
		close(ready)
	})
	return initErr
}

// Get returns the process-wide Cluster Client, blocking until Init has
// completed construction. If Init is never called, Get blocks forever.
func Get() k8sclient.ClusterClient {
	<-ready
	return instance
}
