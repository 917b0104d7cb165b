package ingressbuilder

import (
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"spark-monitor/internal/appmodel"
)

func driverPod(name string, uid types.UID) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			UID:  uid,
		},
	}
}

func TestIngressName_TruncatesLowercasesAndStripsTrailingHyphen(t *testing.T) {
	longName := strings.Repeat("a", 80) + "-"
	name := IngressName(longName)
	if len(name) > 63 {
		t.Errorf("len(name) = %d, want <= 63", len(name))
	}
	if name != strings.ToLower(name) {
		t.Errorf("name = %s, want all lower-case", name)
	}
	if strings.HasSuffix(name, "-") {
		t.Errorf("name = %s, must not end with a hyphen", name)
	}
}

func TestIngressName_SimpleCase(t *testing.T) {
	if got, want := IngressName("my-driver"), "my-driver-ui"; got != want {
		t.Errorf("IngressName = %s, want %s", got, want)
	}
}

func TestBuildService_SelectorAndPort(t *testing.T) {
	app := appmodel.Application{Tag: "t1", Namespace: "ns1"}
	pod := driverPod("t1-driver", types.UID("uid-1"))

	svc := BuildService(app, pod)

	if svc.Spec.ClusterIP != corev1.ClusterIPNone {
		t.Errorf("ClusterIP = %s, want None (headless)", svc.Spec.ClusterIP)
	}
	if svc.Spec.Selector[appmodel.LabelAppTag] != "t1" || svc.Spec.Selector[appmodel.LabelRole] != appmodel.RoleDriver {
		t.Errorf("selector = %v, want tag=t1 role=driver", svc.Spec.Selector)
	}
	if len(svc.Spec.Ports) != 1 || svc.Spec.Ports[0].Port != 4040 || svc.Spec.Ports[0].Name != "spark-ui" {
		t.Errorf("ports = %+v, want single spark-ui:4040", svc.Spec.Ports)
	}
}

func TestBuildService_OwnerReference(t *testing.T) {
	app := appmodel.Application{Tag: "t1", Namespace: "ns1"}
	pod := driverPod("t1-driver", types.UID("uid-1"))

	svc := BuildService(app, pod)

	assertOwnedByDriver(t, svc.OwnerReferences, pod.UID)
}

func TestBuildIngress_OwnerReferenceAndPath(t *testing.T) {
	app := appmodel.Application{Tag: "t1", Namespace: "ns1"}
	pod := driverPod("t1-driver", types.UID("uid-2"))
	opts := Options{Protocol: "http", Host: "spark.example.com"}

	ing := BuildIngress(app, pod, opts)

	assertOwnedByDriver(t, ing.OwnerReferences, pod.UID)

	if len(ing.Spec.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(ing.Spec.Rules))
	}
	rule := ing.Spec.Rules[0]
	if rule.Host != "spark.example.com" {
		t.Errorf("host = %s", rule.Host)
	}
	if len(rule.HTTP.Paths) != 1 || rule.HTTP.Paths[0].Path != "/t1/" {
		t.Errorf("paths = %+v, want /t1/", rule.HTTP.Paths)
	}
}

func TestBuildIngress_TLSOnlyWhenHTTPSAndSecretConfigured(t *testing.T) {
	app := appmodel.Application{Tag: "t1", Namespace: "ns1"}
	pod := driverPod("t1-driver", types.UID("uid-3"))

	httpIngress := BuildIngress(app, pod, Options{Protocol: "http", Host: "h", TLSSecretName: "tls-secret"})
	if httpIngress.Spec.TLS != nil {
		t.Error("http protocol should not produce a TLS entry even with a secret configured")
	}

	httpsNoSecret := BuildIngress(app, pod, Options{Protocol: "https", Host: "h"})
	if httpsNoSecret.Spec.TLS != nil {
		t.Error("https without a configured secret should not produce a TLS entry")
	}

	httpsWithSecret := BuildIngress(app, pod, Options{Protocol: "https", Host: "h", TLSSecretName: "tls-secret"})
	if len(httpsWithSecret.Spec.TLS) != 1 || httpsWithSecret.Spec.TLS[0].SecretName != "tls-secret" {
		t.Errorf("TLS = %+v, want one entry bound to tls-secret", httpsWithSecret.Spec.TLS)
	}
}

func TestBuildIngress_AdditionalAnnotationsMerged(t *testing.T) {
	app := appmodel.Application{Tag: "t1", Namespace: "ns1"}
	pod := driverPod("t1-driver", types.UID("uid-4"))
	opts := Options{
		Protocol:              "http",
		Host:                  "h",
		AdditionalAnnotations: map[string]string{"custom.io/extra": "value"},
	}

	ing := BuildIngress(app, pod, opts)

	if ing.Annotations["custom.io/extra"] != "value" {
		t.Errorf("annotations = %v, want custom.io/extra=value", ing.Annotations)
	}
	if ing.Annotations["kubernetes.io/ingress.class"] != "traefik" {
		t.Errorf("annotations = %v, want traefik ingress class preserved", ing.Annotations)
	}
}

func assertOwnedByDriver(t *testing.T, refs []metav1.OwnerReference, driverUID types.UID) {
	t.Helper()
	for _, ref := range refs {
		if ref.UID == driverUID && ref.Controller != nil && *ref.Controller {
			return
		}
	}
	t.Errorf("owner references = %+v, want an entry for uid %s with controller=true", refs, driverUID)
}
