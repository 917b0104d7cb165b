// Package ingressbuilder constructs the Service and Ingress objects that
// expose a Spark driver's UI, with an OwnerReference back to the driver pod
// so Kubernetes garbage-collects them when the pod disappears.
package ingressbuilder

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"spark-monitor/internal/appmodel"
)

const (
	uiPortName = "spark-ui"
	uiPort     = 4040

	maxNameLength = 63
)

// Options carries the subset of configuration the builder needs, kept
// independent of the config package so this stays a pure function of its
// inputs.
type Options struct {
	Protocol              string
	Host                  string
	TLSSecretName         string
	AdditionalAnnotations map[string]string
	AdditionalConfSnippet string
}

// ServiceName returns the headless Service name for a driver pod.
func ServiceName(driverPodName string) string {
	return sanitizeName(driverPodName + "-ui-svc")
}

// IngressName returns the Ingress name for a driver pod: derived from
// "<driver-pod-name>-ui", truncated to 63 characters, trailing hyphens
// stripped, lower-cased.
func IngressName(driverPodName string) string {
	return sanitizeName(driverPodName + "-ui")
}

func sanitizeName(name string) string {
	name = strings.ToLower(name)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return strings.TrimRight(name, "-")
}

// BuildService constructs the headless Service selecting the driver pod by
// tag+role, with one named port onto 4040.
func BuildService(app appmodel.Application, driverPod *corev1.Pod) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ServiceName(driverPod.Name),
			Namespace: app.Namespace,
			Labels: map[string]string{
				appmodel.LabelAppTag:    app.Tag,
				appmodel.LabelCreatedBy: appmodel.CreatedByValue,
			},
			OwnerReferences: []metav1.OwnerReference{ownerReference(driverPod)},
		},
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector: map[string]string{
				appmodel.LabelAppTag: app.Tag,
				appmodel.LabelRole:   appmodel.RoleDriver,
			},
			Ports: []corev1.ServicePort{
				{
					Name:       uiPortName,
					Port:       uiPort,
					TargetPort: intstr.FromInt(uiPort),
				},
			},
		},
	}
}

// BuildIngress constructs the Ingress fronting the Service built by
// BuildService, with one rule/path per spec and traefik annotations.
func BuildIngress(app appmodel.Application, driverPod *corev1.Pod, opts Options) *networkingv1.Ingress {
	pathType := networkingv1.PathTypePrefix
	annotations := baseAnnotations(opts)

	ingress := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      IngressName(driverPod.Name),
			Namespace: app.Namespace,
			Labels: map[string]string{
				appmodel.LabelAppTag:    app.Tag,
				appmodel.LabelCreatedBy: appmodel.CreatedByValue,
			},
			Annotations: annotations,
			OwnerReferences: []metav1.OwnerReference{
				ownerReference(driverPod),
			},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{
				{
					Host: opts.Host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/" + app.Tag + "/",
									PathType: &pathType,
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: ServiceName(driverPod.Name),
											Port: networkingv1.ServiceBackendPort{
												Name: uiPortName,
											},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	if strings.HasSuffix(opts.Protocol, "s") && opts.TLSSecretName != "" {
		ingress.Spec.TLS = []networkingv1.IngressTLS{
			{
				Hosts:      []string{opts.Host},
				SecretName: opts.TLSSecretName,
			},
		}
	}

	return ingress
}

func baseAnnotations(opts Options) map[string]string {
	annotations := map[string]string{
		"kubernetes.io/ingress.class":                     "traefik",
		"traefik.ingress.kubernetes.io/router.entrypoints": "web",
	}
	if opts.AdditionalConfSnippet != "" {
		annotations["traefik.ingress.kubernetes.io/router.middlewares"] = opts.AdditionalConfSnippet
	}
	for k, v := range opts.AdditionalAnnotations {
		annotations[k] = v
	}
	return annotations
}

// ownerReference builds the controller OwnerReference binding a dependent
// resource's lifetime to driverPod, so the Kubernetes GC reaps it when the
// pod is deleted.
func ownerReference(driverPod *corev1.Pod) metav1.OwnerReference {
	controller := true
	blockOwnerDeletion := true
	return metav1.OwnerReference{
		APIVersion:         "v1",
		Kind:               "Pod",
		Name:               driverPod.Name,
		UID:                driverPod.UID,
		Controller:         &controller,
		BlockOwnerDeletion: &blockOwnerDeletion,
	}
}
