package analyzer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/stringutil"
)

// K8sSchemaAnalyzer wraps kubeconform for structural validation against the
// Kubernetes OpenAPI schemas, one Finding per failing document in a
// multi-document manifest, supplemented with an apimachinery-backed check
// for the one thing every object needs regardless of its schema: a name
//.
type K8sSchemaAnalyzer struct{ Base }

func NewK8sSchemaAnalyzer() *K8sSchemaAnalyzer {
	return &K8sSchemaAnalyzer{Base{
		AnalyzerName: "k8s-schema",
		Applies:      []artifact.Kind{artifact.KindYAMLK8s},
		Tools:        []string{"kubeconform"},
	}}
}

var kubeconformLineRe = regexp.MustCompile(`(?m)^(.+) - (.+) is (invalid|not valid): (.+)$`)

func (a *K8sSchemaAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	findings := a.checkResourceIdentity(ac.Artifact)

	result, toolFindings, ok := runTool(ctx, ac, "kubeconform", []string{"-summary", "-output", "text", ac.Artifact.Path})
	findings = append(findings, toolFindings...)
	if !ok {
		return findings, nil
	}
	for _, match := range kubeconformLineRe.FindAllStringSubmatch(result.Stdout, -1) {
		findings = append(findings, finding.New(
			"CORE-K8S-SCHEMA-VIOLATION", finding.Error,
			fmt.Sprintf("%s: %s", match[2], stringutil.SanitizeErrorMessage(match[4])),
			finding.Location{Path: ac.Artifact.Path, ResourceRef: match[1]}, a.AnalyzerName,
		))
	}
	return findings, nil
}

// checkResourceIdentity decodes each document into an unstructured.Unstructured
// and flags any object missing metadata.name, independent of whatever
// kubeconform's schema says about the rest of the object.
func (a *K8sSchemaAnalyzer) checkResourceIdentity(art *artifact.Artifact) []finding.Finding {
	parsed, perr := art.Parsed()
	if perr != nil {
		return nil
	}
	docs, ok := parsed.([]*yaml.Node)
	if !ok {
		return nil
	}

	var findings []finding.Finding
	for i, doc := range docs {
		instance, err := nodeToJSONCompatible(doc)
		if err != nil {
			continue
		}
		m, ok := instance.(map[string]any)
		if !ok || m["kind"] == nil {
			continue
		}
		obj := unstructured.Unstructured{Object: m}
		if obj.GetName() == "" && obj.GetGenerateName() == "" {
			findings = append(findings, finding.New(
				"CORE-K8S-MISSING-NAME", finding.Error,
				fmt.Sprintf("%s has no metadata.name or metadata.generateName", obj.GetKind()),
				finding.Location{Path: art.Path, ResourceRef: fmt.Sprintf("document #%d", i)}, a.AnalyzerName,
			))
		}
	}
	return findings
}

// K8sDryRunAnalyzer applies each manifest with kubectl's server-side
// dry-run, which exercises admission webhooks and CRD validation that a
// purely offline schema check cannot. It is best-effort: an unreachable
// cluster degrades to zero findings rather than a failure, extending the
// skip_if_tool_missing philosophy to an unreachable cluster.
type K8sDryRunAnalyzer struct{ Base }

func NewK8sDryRunAnalyzer() *K8sDryRunAnalyzer {
	return &K8sDryRunAnalyzer{Base{
		AnalyzerName: "k8s-dry-run",
		Applies:      []artifact.Kind{artifact.KindYAMLK8s},
		Tools:        []string{"kubectl"},
		Dependencies: []string{"k8s-schema"},
	}}
}

var kubectlDryRunErrorRe = regexp.MustCompile(`(?m)^error: (.+)$`)

func (a *K8sDryRunAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	if !clusterReachable() {
		return nil, nil
	}

	result, findings, ok := runTool(ctx, ac, "kubectl", []string{"apply", "--dry-run=server", "-f", ac.Artifact.Path})
	if !ok {
		return findings, nil
	}
	if result.ExitCode == 0 {
		return findings, nil
	}

	for _, match := range kubectlDryRunErrorRe.FindAllStringSubmatch(result.Stderr, -1) {
		findings = append(findings, finding.New(
			"CORE-K8S-DRY-RUN-REJECTED", finding.Error, stringutil.SanitizeErrorMessage(match[1]),
			finding.Location{Path: ac.Artifact.Path}, a.AnalyzerName,
		))
	}
	return findings, nil
}

const clusterReachabilityTimeout = 3 * time.Second

// clusterReachable builds a client from the ambient kubeconfig (KUBECONFIG
// or ~/.kube/config) and makes one cheap discovery call. It returns false
// for every error instead of surfacing one, since "no cluster configured"
// is the common case in CI and not itself a finding.
func clusterReachable() bool {
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return false
		}
		kubeconfig = home + "/.kube/config"
	}
	if _, err := os.Stat(kubeconfig); err != nil {
		return false
	}

	restCfg, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return false
	}
	restCfg.Timeout = clusterReachabilityTimeout

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return false
	}
	_, err = clientset.Discovery().ServerVersion()
	return err == nil
}
