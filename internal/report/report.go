// Package report derives an immutable Application Report from a driver
// pod, its executors, a recent log window and an optional ingress. It is a
// pure function of its inputs: no cluster calls happen here.
package report

import (
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"

	"spark-monitor/internal/appmodel"
)

// Options carries the configuration the report needs to derive URLs:
// ingress protocol for the tracking URL, and Grafana/Loki + history-server
// settings for log URLs.
type Options struct {
	IngressProtocol string

	GrafanaEnabled    bool
	GrafanaURL        string
	GrafanaTimeRange  string
	GrafanaDatasource string

	HistoryServerURL string
}

// ApplicationReport is the immutable snapshot described in the data model:
// driver pod (optional), executors ordered by pod name, a bounded log
// window, and an optional ingress.
type ApplicationReport struct {
	Driver    *corev1.Pod
	Executors []*corev1.Pod
	LogWindow []string
	Ingress   *networkingv1.Ingress

	opts Options
	tag  string
}

// New builds a report, sorting executors by pod name as the data model
// requires.
func New(driver *corev1.Pod, executors []*corev1.Pod, logWindow []string, ingress *networkingv1.Ingress, tag string, opts Options) ApplicationReport {
	sorted := append([]*corev1.Pod(nil), executors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return ApplicationReport{
		Driver:    driver,
		Executors: sorted,
		LogWindow: logWindow,
		Ingress:   ingress,
		opts:      opts,
		tag:       tag,
	}
}

// State returns the lower-case driver phase's mapped Application State, or
// Failed if there is no driver pod ("unknown" in spec terms).
func (r ApplicationReport) State() appmodel.State {
	if r.Driver == nil {
		return appmodel.Failed
	}
	return appmodel.PhaseToState(string(r.Driver.Status.Phase))
}

// RawPhase returns the driver's raw phase string, or "unknown" with no
// driver pod. Used for diagnostics and unknown-phase logging.
func (r ApplicationReport) RawPhase() string {
	if r.Driver == nil {
		return "unknown"
	}
	return strings.ToLower(string(r.Driver.Status.Phase))
}

// TrackingURL returns "<protocol>://<host>/<tag>" when the ingress exists
// and its first rule carries a host.
func (r ApplicationReport) TrackingURL() string {
	if r.Ingress == nil || len(r.Ingress.Spec.Rules) == 0 {
		return ""
	}
	host := r.Ingress.Spec.Rules[0].Host
	if host == "" {
		return ""
	}
	protocol := r.opts.IngressProtocol
	if protocol == "" {
		protocol = "http"
	}
	return fmt.Sprintf("%s://%s/%s", protocol, host, r.tag)
}

// DriverLogURL returns a Grafana explore URL selecting {tag=…, role="driver"}
// when Grafana/Loki is enabled and the driver carries a tag label.
func (r ApplicationReport) DriverLogURL() string {
	if !r.opts.GrafanaEnabled || r.Driver == nil {
		return ""
	}
	tag := r.Driver.Labels[appmodel.LabelAppTag]
	if tag == "" {
		return ""
	}
	return grafanaExploreURL(r.opts, map[string]string{
		"tag":  tag,
		"role": appmodel.RoleDriver,
	})
}

// ExecutorsLogURLs returns the same pattern per executor, joined by ";" and
// each prefixed with "executor-<execId>#". Executors missing either the
// tag or exec-id label are skipped.
func (r ApplicationReport) ExecutorsLogURLs() string {
	if !r.opts.GrafanaEnabled {
		return ""
	}
	var parts []string
	for _, pod := range r.Executors {
		tag := pod.Labels[appmodel.LabelAppTag]
		execID := pod.Labels[appmodel.LabelExecID]
		if tag == "" || execID == "" {
			continue
		}
		url := grafanaExploreURL(r.opts, map[string]string{
			"tag":     tag,
			"role":    appmodel.RoleExecutor,
			"exec_id": execID,
		})
		parts = append(parts, fmt.Sprintf("executor-%s#%s", execID, url))
	}
	return strings.Join(parts, ";")
}

// AppInfo builds the listener-facing info snapshot.
func (r ApplicationReport) AppInfo(sparkUIURL string) appmodel.AppInfo {
	return appmodel.AppInfo{
		DriverLogURL:     r.DriverLogURL(),
		TrackingURL:      r.TrackingURL(),
		ExecutorsLogURLs: r.ExecutorsLogURLs(),
		SparkUIURL:       sparkUIURL,
	}
}

// HistoryServerURL returns the tracking URL to use once an application has
// terminated: the configured history server base URL plus the appId.
func (r ApplicationReport) HistoryServerURL(appID string) string {
	if r.opts.HistoryServerURL == "" || appID == "" {
		return ""
	}
	return strings.TrimRight(r.opts.HistoryServerURL, "/") + "/history/" + appID
}

// Diagnostics renders a multi-line pretty-print of the driver followed by
// executors (already sorted by pod name): name.namespace, node, hostname,
// podIp, startTime, phase, reason, message, labels, container specs,
// conditions.
func (r ApplicationReport) Diagnostics() string {
	var b strings.Builder
	if r.Driver != nil {
		writePodDiagnostics(&b, r.Driver)
	} else {
		b.WriteString("driver: not found\n")
	}
	for _, pod := range r.Executors {
		b.WriteString("\n")
		writePodDiagnostics(&b, pod)
	}
	return b.String()
}

func writePodDiagnostics(b *strings.Builder, pod *corev1.Pod) {
	fmt.Fprintf(b, "%s.%s\n", pod.Name, pod.Namespace)
	fmt.Fprintf(b, "  node: %s\n", pod.Spec.NodeName)
	fmt.Fprintf(b, "  hostname: %s\n", pod.Spec.Hostname)
	fmt.Fprintf(b, "  podIp: %s\n", pod.Status.PodIP)
	fmt.Fprintf(b, "  startTime: %s\n", podStartTime(pod))
	fmt.Fprintf(b, "  phase: %s\n", pod.Status.Phase)
	fmt.Fprintf(b, "  reason: %s\n", pod.Status.Reason)
	fmt.Fprintf(b, "  message: %s\n", pod.Status.Message)
	fmt.Fprintf(b, "  labels: %v\n", pod.Labels)
	for _, c := range pod.Spec.Containers {
		fmt.Fprintf(b, "  container %s: image=%s requests=%v limits=%v command=%v args=%v\n",
			c.Name, c.Image, c.Resources.Requests, c.Resources.Limits, c.Command, c.Args)
	}
	for _, cond := range pod.Status.Conditions {
		fmt.Fprintf(b, "  condition %s=%s reason=%s\n", cond.Type, cond.Status, cond.Reason)
	}
}

func podStartTime(pod *corev1.Pod) string {
	if pod.Status.StartTime == nil {
		return ""
	}
	return pod.Status.StartTime.String()
}

// Log returns the indexed log sequence: driver stdout, child process
// output, and the Kubernetes diagnostics block, as three labelled sections.
func (r ApplicationReport) Log(childStdout, childStderr []string) []string {
	out := []string{"stdout:"}
	out = append(out, r.LogWindow...)
	out = append(out, "\nstderr:")
	out = append(out, childStdout...)
	out = append(out, childStderr...)
	out = append(out, "\nKubernetes Diagnostics:")
	out = append(out, r.Diagnostics())
	return out
}
