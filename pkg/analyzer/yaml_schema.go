package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

// YAMLSchemaAnalyzer validates each parsed YAML document against the
// embedded JSON Schema for its workflow dialect (GitHub Actions, GitLab CI,
// Azure Pipelines). Kubernetes manifests are schema-checked separately by
// K8sSchemaAnalyzer, which can consult a live OpenAPI/CRD schema instead of
// a bundled one.
type YAMLSchemaAnalyzer struct{ Base }

func NewYAMLSchemaAnalyzer() *YAMLSchemaAnalyzer {
	return &YAMLSchemaAnalyzer{Base{
		AnalyzerName: "yaml-schema",
		Applies: []artifact.Kind{
			artifact.KindYAMLWorkflowGitHub, artifact.KindYAMLWorkflowGitLab, artifact.KindYAMLWorkflowAzure,
		},
	}}
}

// embeddedSchemas holds a minimal structural schema per workflow dialect,
// bundled so yaml-schema works with DocLookupEnabled=false as an
// always-available baseline before any doc side-channel lookup.
var embeddedSchemas = map[artifact.Kind]string{
	artifact.KindYAMLWorkflowGitHub: `{
		"type": "object",
		"required": ["on", "jobs"],
		"properties": {
			"jobs": {"type": "object", "minProperties": 1}
		}
	}`,
	artifact.KindYAMLWorkflowGitLab: `{
		"type": "object",
		"minProperties": 1
	}`,
	artifact.KindYAMLWorkflowAzure: `{
		"type": "object",
		"properties": {
			"stages": {"type": "array"},
			"jobs": {"type": "array"},
			"steps": {"type": "array"}
		}
	}`,
}

func (a *YAMLSchemaAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	schemaSrc, ok := embeddedSchemas[ac.Artifact.Kind]
	if !ok {
		return nil, nil
	}

	compiler := jsonschema.NewCompiler()
	schemaID := "mem://" + string(ac.Artifact.Kind) + ".json"
	var schemaDoc any
	if err := json.Unmarshal([]byte(schemaSrc), &schemaDoc); err != nil {
		return nil, fmt.Errorf("yaml-schema: decoding embedded schema: %w", err)
	}
	if err := compiler.AddResource(schemaID, schemaDoc); err != nil {
		return nil, fmt.Errorf("yaml-schema: registering embedded schema: %w", err)
	}
	schema, err := compiler.Compile(schemaID)
	if err != nil {
		return nil, fmt.Errorf("yaml-schema: compiling embedded schema: %w", err)
	}

	parsed, perr := ac.Artifact.Parsed()
	if perr != nil {
		return nil, nil
	}
	docs, ok := parsed.([]*yaml.Node)
	if !ok {
		return nil, nil
	}

	var findings []finding.Finding
	for i, doc := range docs {
		instance, err := nodeToJSONCompatible(doc)
		if err != nil {
			continue
		}
		if err := schema.Validate(instance); err != nil {
			findings = append(findings, finding.New(
				"CORE-YAML-SCHEMA-VIOLATION", finding.Error,
				schemaValidationMessage(err),
				finding.Location{Path: ac.Artifact.Path, ResourceRef: fmt.Sprintf("document #%d", i)}, a.AnalyzerName,
			))
		}
	}
	return findings, nil
}

// nodeToJSONCompatible decodes a YAML document into the interface{}/
// map[string]interface{}/float64 shape jsonschema expects, by round
// tripping through encoding/json rather than trusting yaml.v3's native
// decode types (which can differ, e.g. int vs float64).
func nodeToJSONCompatible(node *yaml.Node) (any, error) {
	var generic any
	if err := node.Decode(&generic); err != nil {
		return nil, err
	}
	data, err := json.Marshal(generic)
	if err != nil {
		return nil, err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, err
	}
	return instance, nil
}

func schemaValidationMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 {
		return msg[idx+2:]
	}
	return msg
}
