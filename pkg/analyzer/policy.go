package analyzer

import (
	"context"
	"encoding/json"

	"github.com/open-policy-agent/opa/rego"
	corev1 "k8s.io/api/core/v1"
	sigsyaml "sigs.k8s.io/yaml"

	"gopkg.in/yaml.v3"

	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

// k8sPodSecurityPolicy is a small rego module expressing two practices that
// don't need an external admission controller to check: every container
// should declare resource limits, and none should run privileged.
const k8sPodSecurityPolicy = `
package corevalidate.k8s

deny[msg] {
	some i
	c := input_containers[i]
	not c.resources.limits.cpu
	msg := sprintf("container %q has no resources.limits.cpu", [c.name])
}

deny[msg] {
	some i
	c := input_containers[i]
	not c.resources.limits.memory
	msg := sprintf("container %q has no resources.limits.memory", [c.name])
}

deny[msg] {
	some i
	c := input_containers[i]
	c.securityContext.privileged == true
	msg := sprintf("container %q runs with securityContext.privileged", [c.name])
}

input_containers[c] {
	c := input.spec.containers[_]
}

input_containers[c] {
	c := input.spec.template.spec.containers[_]
}
`

// evalK8sPodSecurityPolicy runs doc (a decoded Kubernetes manifest document)
// against k8sPodSecurityPolicy and returns one Finding per deny message.
func evalK8sPodSecurityPolicy(ctx context.Context, path string, lineHint int, doc any, analyzerName string) []finding.Finding {
	m, ok := doc.(map[string]any)
	if !ok || m["kind"] == nil {
		return nil
	}

	r := rego.New(
		rego.Query("data.corevalidate.k8s.deny"),
		rego.Module("corevalidate_k8s.rego", k8sPodSecurityPolicy),
		rego.Input(doc),
	)
	resultSet, err := r.Eval(ctx)
	if err != nil || len(resultSet) == 0 || len(resultSet[0].Expressions) == 0 {
		return nil
	}

	messages, ok := resultSet[0].Expressions[0].Value.([]any)
	if !ok {
		return nil
	}

	findings := make([]finding.Finding, 0, len(messages))
	for _, raw := range messages {
		msg, ok := raw.(string)
		if !ok {
			continue
		}
		findings = append(findings, finding.New(
			"CORE-K8S-POLICY-VIOLATION", finding.Warning, msg,
			finding.Location{Path: path, Line: lineHint}, analyzerName,
		))
	}
	return findings
}

// checkK8sPolicy decodes each document in art and evaluates it against the
// pod-security rego policy, used by CoreBestPracticesAnalyzer for
// artifact.KindYAMLK8s in place of a separate analyzer, since it shares the
// "no external tool required" home the rest of core-best-practices lives in.
// Pod documents additionally get a typed structural check against
// k8s.io/api/core/v1.Pod, which catches shapes (an empty container list) the
// generic rego rules don't look for.
func (a *CoreBestPracticesAnalyzer) checkK8sPolicy(ctx context.Context, ac Context) []finding.Finding {
	parsed, err := ac.Artifact.Parsed()
	if err != nil {
		return nil
	}
	docs, ok := parsed.([]*yaml.Node)
	if !ok {
		return nil
	}

	var findings []finding.Finding
	for _, doc := range docs {
		instance, err := nodeToJSONCompatible(doc)
		if err != nil {
			continue
		}
		line := 1
		if doc.Line > 0 {
			line = doc.Line
		}
		findings = append(findings, evalK8sPodSecurityPolicy(ctx, ac.Artifact.Path, line, instance, a.AnalyzerName)...)

		if jsonBytes, err := json.Marshal(instance); err == nil {
			findings = append(findings, checkTypedPodStructure(ac.Artifact.Path, line, jsonBytes, a.AnalyzerName)...)
		}
	}
	return findings
}

// checkTypedPodStructure decodes a Pod document into the typed
// k8s.io/api/core/v1.Pod struct via sigs.k8s.io/yaml's JSON-tag-aware
// decoder. Non-Pod documents and decode failures are silently skipped; the
// rego-based checks above already cover those generically.
func checkTypedPodStructure(path string, lineHint int, jsonBytes []byte, analyzerName string) []finding.Finding {
	var pod corev1.Pod
	if err := sigsyaml.Unmarshal(jsonBytes, &pod); err != nil || pod.Kind != "Pod" {
		return nil
	}
	if len(pod.Spec.Containers) == 0 {
		return []finding.Finding{finding.New(
			"CORE-K8S-POD-NO-CONTAINERS", finding.Error,
			"pod spec declares no containers",
			finding.Location{Path: path, Line: lineHint}, analyzerName,
		)}
	}
	return nil
}
