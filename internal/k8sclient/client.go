// Package k8sclient is the thin typed facade over a Kubernetes API client
// that the rest of the monitor talks to: list driver pods, build an
// Application Report, kill a driver, and create the Spark UI ingress pair.
package k8sclient

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"

	"spark-monitor/internal/appmodel"
	"spark-monitor/internal/ingressbuilder"
	"spark-monitor/internal/report"
)

// ClusterClient is the capability surface the App Monitor and Leak Reaper
// depend on. Every method must be safe for concurrent use and retry-safe
// at the caller (see internal/retry).
type ClusterClient interface {
	ListApplications(ctx context.Context) ([]appmodel.Application, error)
	GetReport(ctx context.Context, app appmodel.Application, logWindow int, opts report.Options) (report.ApplicationReport, error)
	KillApplication(ctx context.Context, app appmodel.Application) (bool, error)
	CreateSparkUIIngress(ctx context.Context, app appmodel.Application, opts ingressbuilder.Options) error
}

// Client is the ClusterClient backed by a real kubernetes.Interface.
type Client struct {
	clientset  kubernetes.Interface
	namespaces []string
	log        *slog.Logger
}

// New builds a Client. An empty namespaces set means "all namespaces".
func New(clientset kubernetes.Interface, namespaces []string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{clientset: clientset, namespaces: namespaces, log: log}
}

// ListApplications lists driver pods across the configured namespace set
// (or all namespaces when empty), filtered to pods carrying both the tag
// and app-id labels, and wraps them into Application values.
func (c *Client) ListApplications(ctx context.Context) ([]appmodel.Application, error) {
	selector := labels.Set{appmodel.LabelRole: appmodel.RoleDriver}.AsSelector().String()

	var apps []appmodel.Application
	for _, ns := range c.namespacesOrAll() {
		list, err := c.clientset.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			return nil, fmt.Errorf("k8sclient: list driver pods in %q: %w", nsLabel(ns), err)
		}
		for i := range list.Items {
			pod := &list.Items[i]
			tag := pod.Labels[appmodel.LabelAppTag]
			appID := pod.Labels[appmodel.LabelAppSelector]
			if tag == "" || appID == "" {
				continue
			}
			apps = append(apps, appmodel.Application{
				Tag:       tag,
				Namespace: pod.Namespace,
				AppID:     appID,
				DriverPod: &appmodel.PodRef{Name: pod.Name, UID: string(pod.UID)},
			})
		}
	}
	return apps, nil
}

// namespacesOrAll returns the configured namespace set, or a single empty
// string standing for "all namespaces" against the client-go API.
func (c *Client) namespacesOrAll() []string {
	if len(c.namespaces) == 0 {
		return []string{metav1.NamespaceAll}
	}
	return c.namespaces
}

func nsLabel(ns string) string {
	if ns == metav1.NamespaceAll {
		return "<all>"
	}
	return ns
}

// GetReport lists pods carrying app.Tag in app.Namespace, splits them into
// driver/executors by role label, tails the driver log (best-effort), and
// fetches the app's ingress if any.
func (c *Client) GetReport(ctx context.Context, app appmodel.Application, logWindow int, opts report.Options) (report.ApplicationReport, error) {
	selector := labels.Set{appmodel.LabelAppTag: app.Tag}.AsSelector().String()
	list, err := c.clientset.CoreV1().Pods(app.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return report.ApplicationReport{}, fmt.Errorf("k8sclient: list pods for tag %q: %w", app.Tag, err)
	}

	var driver *corev1.Pod
	var executors []*corev1.Pod
	for i := range list.Items {
		pod := &list.Items[i]
		switch pod.Labels[appmodel.LabelRole] {
		case appmodel.RoleDriver:
			if driver == nil {
				driver = pod
			}
		case appmodel.RoleExecutor:
			executors = append(executors, pod)
		}
	}

	var logLines []string
	if driver != nil {
		logLines = c.tailDriverLog(ctx, driver, logWindow)
	}

	ingress, err := c.getIngress(ctx, app)
	if err != nil {
		return report.ApplicationReport{}, err
	}

	return report.New(driver, executors, logLines, ingress, app.Tag, opts), nil
}

// tailDriverLog reads up to logWindow lines from the driver's log. A
// streaming failure degrades to an empty window rather than failing the
// report, per spec.
func (c *Client) tailDriverLog(ctx context.Context, driver *corev1.Pod, logWindow int) []string {
	if logWindow <= 0 {
		return nil
	}
	tail := int64(logWindow)
	req := c.clientset.CoreV1().Pods(driver.Namespace).GetLogs(driver.Name, &corev1.PodLogOptions{TailLines: &tail})
	stream, err := req.Stream(ctx)
	if err != nil {
		c.log.Warn("tail driver log failed, using empty window", "pod", driver.Name, "err", err)
		return nil
	}
	defer stream.Close()

	var lines []string
	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn("reading driver log stream failed, returning partial window", "pod", driver.Name, "err", err)
	}
	return lines
}

func (c *Client) getIngress(ctx context.Context, app appmodel.Application) (*networkingv1.Ingress, error) {
	selector := labels.Set{appmodel.LabelAppTag: app.Tag}.AsSelector().String()
	list, err := c.clientset.NetworkingV1().Ingresses(app.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("k8sclient: list ingresses for tag %q: %w", app.Tag, err)
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	return &list.Items[0], nil
}

// KillApplication deletes the driver pod and reports cluster success. A
// not-found driver is treated as already killed.
func (c *Client) KillApplication(ctx context.Context, app appmodel.Application) (bool, error) {
	if app.DriverPod == nil {
		return false, fmt.Errorf("k8sclient: kill application %q: no driver pod resolved", app.Tag)
	}
	err := c.clientset.CoreV1().Pods(app.Namespace).Delete(ctx, app.DriverPod.Name, metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, fmt.Errorf("k8sclient: delete pod %q: %w", app.DriverPod.Name, err)
	}
	return true, nil
}

// CreateSparkUIIngress builds the Service+Ingress pair for the Spark UI and
// creates-or-replaces them, with owner references to the driver pod. The
// Service is written first and the Ingress second, in separate API calls;
// the pair is not applied atomically, so a failure on the Ingress leaves
// the Service in place.
func (c *Client) CreateSparkUIIngress(ctx context.Context, app appmodel.Application, opts ingressbuilder.Options) error {
	if app.DriverPod == nil {
		return fmt.Errorf("k8sclient: create spark ui ingress for %q: no driver pod resolved", app.Tag)
	}
	driverPod, err := c.clientset.CoreV1().Pods(app.Namespace).Get(ctx, app.DriverPod.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("k8sclient: fetch driver pod %q: %w", app.DriverPod.Name, err)
	}

	svc := ingressbuilder.BuildService(app, driverPod)
	if err := c.createOrReplaceService(ctx, svc); err != nil {
		return fmt.Errorf("k8sclient: create-or-replace service: %w", err)
	}

	ing := ingressbuilder.BuildIngress(app, driverPod, opts)
	if err := c.createOrReplaceIngress(ctx, ing); err != nil {
		return fmt.Errorf("k8sclient: create-or-replace ingress: %w", err)
	}
	return nil
}

// createOrReplaceService creates svc, or deletes and recreates it when an
// existing Service's selector/port shape differs. ClusterIP is immutable
// in Kubernetes, so an in-place update cannot change the selector; delete
// and recreate is the documented resolution (SPEC_FULL §9).
func (c *Client) createOrReplaceService(ctx context.Context, svc *corev1.Service) error {
	svcs := c.clientset.CoreV1().Services(svc.Namespace)
	existing, err := svcs.Get(ctx, svc.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			_, err := svcs.Create(ctx, svc, metav1.CreateOptions{})
			if apierrors.IsAlreadyExists(err) {
				return nil
			}
			return err
		}
		return err
	}

	if serviceMatches(existing, svc) {
		return nil
	}

	if err := svcs.Delete(ctx, svc.Name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	_, err = svcs.Create(ctx, svc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func serviceMatches(existing, desired *corev1.Service) bool {
	if len(existing.Spec.Ports) != len(desired.Spec.Ports) {
		return false
	}
	for i := range desired.Spec.Ports {
		if existing.Spec.Ports[i].Port != desired.Spec.Ports[i].Port ||
			existing.Spec.Ports[i].Name != desired.Spec.Ports[i].Name {
			return false
		}
	}
	for k, v := range desired.Spec.Selector {
		if existing.Spec.Selector[k] != v {
			return false
		}
	}
	return true
}

func (c *Client) createOrReplaceIngress(ctx context.Context, ing *networkingv1.Ingress) error {
	ingresses := c.clientset.NetworkingV1().Ingresses(ing.Namespace)
	_, err := ingresses.Get(ctx, ing.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			_, err := ingresses.Create(ctx, ing, metav1.CreateOptions{})
			if apierrors.IsAlreadyExists(err) {
				return nil
			}
			return err
		}
		return err
	}

	_, err = ingresses.Update(ctx, ing, metav1.UpdateOptions{})
	return err
}
