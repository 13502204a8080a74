// Package artifact classifies an input file into one of the supported
// artifact kinds and produces a normalized in-memory representation,
// parsed lazily on first analyzer demand.
package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
)

var log = logger.New("artifact:classifier")

// Kind is one of the enumerated artifact kinds the classifier can produce.
type Kind string

const (
	KindYAMLWorkflowGitHub     Kind = "yaml-workflow-github"
	KindYAMLWorkflowGitLab     Kind = "yaml-workflow-gitlab"
	KindYAMLWorkflowAzure      Kind = "yaml-workflow-azure"
	KindYAMLK8s                Kind = "yaml-k8s"
	KindYAMLHelmChart          Kind = "yaml-helm-chart"
	KindYAMLFluentBit          Kind = "yaml-fluentbit"
	KindHCLTerraform           Kind = "hcl-terraform"
	KindHCLTerragrunt          Kind = "hcl-terragrunt"
	KindDockerfile             Kind = "dockerfile"
	KindMakefile               Kind = "makefile"
	KindBashScript             Kind = "bash-script"
	KindJenkinsfileDeclarative Kind = "jenkinsfile-declarative"
	KindJenkinsfileScripted    Kind = "jenkinsfile-scripted"
	KindGroovySharedLib        Kind = "groovy-shared-lib"
	KindLokiConfig             Kind = "loki-config"
	KindUnknown                Kind = "unknown"
)

// Resource is one (document-index, kind, apiVersion, name) tuple for a
// multi-document YAML artifact.
type Resource struct {
	DocumentIndex int
	Kind          string
	APIVersion    string
	Name          string
}

// ExtensionHint mirrors extension.Hint; declared here to avoid an import
// cycle with pkg/extension, which depends on Artifact instead.
type ExtensionHint struct {
	Category   string
	Identifier string
	Resolved   any
}

// Artifact represents the input under validation. Content and Kind are
// immutable after classification; Extensions may be appended to exactly once
// by the extension detector before analyzers run.
type Artifact struct {
	Path      string
	Kind      Kind
	Content   []byte
	Resources []Resource

	Extensions []ExtensionHint

	parseOnce sync.Once
	parsed    any
	parseErr  *finding.Finding
}

// Parsed lazily parses the artifact's structured representation on first
// call, memoizing the result. YAML-kind artifacts get a
// []*yaml.Node (one per document); all other kinds currently return nil,
// relying on byte-level analyzers.
func (a *Artifact) Parsed() (any, *finding.Finding) {
	a.parseOnce.Do(func() {
		switch a.Kind {
		case KindYAMLWorkflowGitHub, KindYAMLWorkflowGitLab, KindYAMLWorkflowAzure, KindYAMLK8s, KindYAMLHelmChart:
			docs, resources, perr := parseMultiDocYAML(a.Path, a.Content)
			a.parsed = docs
			a.Resources = resources
			a.parseErr = perr
		}
	})
	return a.parsed, a.parseErr
}

func parseMultiDocYAML(path string, content []byte) ([]*yaml.Node, []Resource, *finding.Finding) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	var docs []*yaml.Node
	var resources []Resource

	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			f := finding.New(
				"CORE-PARSE-FAILURE",
				finding.Fatal,
				fmt.Sprintf("failed to parse YAML document #%d: %v", i, err),
				finding.Location{Path: path, ResourceRef: fmt.Sprintf("document #%d", i)},
				"core-artifact-loader",
			)
			return docs, resources, &f
		}
		docs = append(docs, &node)

		if kind, apiVersion, name, ok := extractK8sIdentity(&node); ok {
			resources = append(resources, Resource{DocumentIndex: i, Kind: kind, APIVersion: apiVersion, Name: name})
		}
	}
	return docs, resources, nil
}

func extractK8sIdentity(node *yaml.Node) (kind, apiVersion, name string, ok bool) {
	if node == nil || len(node.Content) == 0 || node.Kind != yaml.DocumentNode {
		return "", "", "", false
	}
	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return "", "", "", false
	}
	m := mappingToStrings(root)
	kind, hasKind := m["kind"]
	apiVersion, hasAPI := m["apiVersion"]
	if !hasKind || !hasAPI {
		return "", "", "", false
	}
	if meta, ok := m["metadata.name"]; ok {
		name = meta
	}
	return kind, apiVersion, name, true
}

func mappingToStrings(mapping *yaml.Node) map[string]string {
	out := make(map[string]string)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i]
		val := mapping.Content[i+1]
		if key.Value == "metadata" && val.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(val.Content); j += 2 {
				if val.Content[j].Value == "name" {
					out["metadata.name"] = val.Content[j+1].Value
				}
			}
			continue
		}
		if val.Kind == yaml.ScalarNode {
			out[key.Value] = val.Value
		}
	}
	return out
}

var (
	dockerfileNameRe = regexp.MustCompile(`^(Dockerfile(\..+)?|.+\.Dockerfile)$`)
	makefileNameRe   = regexp.MustCompile(`^(Makefile|GNUmakefile|.+\.mk)$`)
	jenkinsfileRe    = regexp.MustCompile(`^(Jenkinsfile|.+\.Jenkinsfile)$`)
	shebangRe        = regexp.MustCompile(`^#!.*\b(bash|sh)\b`)
)

// Classify applies the ordered content-sniffing rules and returns a new Artifact.
func Classify(path string) (*Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: reading %s: %w", path, err)
	}

	base := filepath.Base(path)
	ext := filepath.Ext(path)
	kind := classifyKind(path, base, ext, content)

	log.Printf("classified %s as %s", path, kind)
	return &Artifact{Path: path, Kind: kind, Content: content}, nil
}

func classifyKind(path, base, ext string, content []byte) Kind {
	switch {
	case dockerfileNameRe.MatchString(base):
		return KindDockerfile
	case makefileNameRe.MatchString(base):
		return KindMakefile
	case jenkinsfileRe.MatchString(base):
		if containsToken(content, "pipeline {") {
			return KindJenkinsfileDeclarative
		}
		return KindJenkinsfileScripted
	case ext == ".groovy" && isSharedLibPath(path) && looksLikeSharedLib(content):
		return KindGroovySharedLib
	case ext == ".sh" || firstLineIsShebang(content):
		return KindBashScript
	case ext == ".tf" || ext == ".tfvars":
		return KindHCLTerraform
	case ext == ".hcl" && (containsToken(content, "terragrunt") || containsToken(content, "include")):
		return KindHCLTerragrunt
	case ext == ".yml" || ext == ".yaml":
		return classifyYAML(path, content)
	case looksLikeFluentBitINI(content):
		return KindYAMLFluentBit
	case containsToken(content, "schema_config:") && containsToken(content, "storage_config:"):
		return KindLokiConfig
	default:
		return KindUnknown
	}
}

func classifyYAML(path string, content []byte) Kind {
	normalized := filepath.ToSlash(path)
	switch {
	case strings.Contains(normalized, ".github/workflows/"):
		return KindYAMLWorkflowGitHub
	case hasTopLevelKeys(content, "on", "jobs"):
		return KindYAMLWorkflowGitHub
	case filepath.Base(path) == ".gitlab-ci.yml", hasTopLevelKeyAndNested(content, "stages", "script"):
		return KindYAMLWorkflowGitLab
	case hasTopLevelKeyAndNested(content, "stages", "jobs") && (containsToken(content, "pool:") || containsToken(content, "trigger:")):
		return KindYAMLWorkflowAzure
	case containsToken(content, "apiVersion") && containsToken(content, "kind"):
		return KindYAMLK8s
	case hasSiblingChartYAML(path):
		return KindYAMLHelmChart
	case looksLikeFluentBitINI(content):
		return KindYAMLFluentBit
	default:
		return KindUnknown
	}
}

func containsToken(content []byte, token string) bool {
	return bytes.Contains(content, []byte(token))
}

func firstLineIsShebang(content []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	if !scanner.Scan() {
		return false
	}
	return shebangRe.MatchString(scanner.Text())
}

func hasTopLevelKeys(content []byte, keys ...string) bool {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return false
	}
	for _, k := range keys {
		if _, ok := doc[k]; !ok {
			return false
		}
	}
	return true
}

func hasTopLevelKeyAndNested(content []byte, topKey, nestedKey string) bool {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return false
	}
	top, ok := doc[topKey]
	if !ok {
		return false
	}
	return containsToken([]byte(fmt.Sprintf("%v", top)), nestedKey) || bytes.Contains(content, []byte(nestedKey+":"))
}

func hasSiblingChartYAML(path string) bool {
	dir := filepath.Dir(path)
	for {
		if _, err := os.Stat(filepath.Join(dir, "Chart.yaml")); err == nil {
			return true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

func looksLikeFluentBitINI(content []byte) bool {
	for _, marker := range []string{"[INPUT]", "[OUTPUT]", "[SERVICE]"} {
		if containsToken(content, marker) {
			return true
		}
	}
	return false
}

func isSharedLibPath(path string) bool {
	normalized := filepath.ToSlash(path)
	return strings.Contains(normalized, "/vars/") || strings.Contains(normalized, "/src/")
}

func looksLikeSharedLib(content []byte) bool {
	return containsToken(content, "@NonCPS") || containsToken(content, "def call(")
}

var _ = constants.ArtifactKinds // documents the full enum this package must stay in sync with
