package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClassifyDockerfile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Dockerfile", "FROM nginx:latest\nCMD [\"nginx\"]\n")

	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindDockerfile, a.Kind)
}

func TestClassifyMakefile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Makefile", "all:\n\techo hi\n")

	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindMakefile, a.Kind)
}

func TestClassifyJenkinsfileDeclarativeVsScripted(t *testing.T) {
	dir := t.TempDir()
	decl := writeFile(t, dir, "Jenkinsfile", "pipeline {\n  agent any\n}\n")
	a, err := Classify(decl)
	require.NoError(t, err)
	assert.Equal(t, KindJenkinsfileDeclarative, a.Kind)

	scripted := writeFile(t, dir, "other.Jenkinsfile", "node {\n  sh 'echo hi'\n}\n")
	b, err := Classify(scripted)
	require.NoError(t, err)
	assert.Equal(t, KindJenkinsfileScripted, b.Kind)
}

func TestClassifyBashScriptByShebang(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "run", "#!/usr/bin/env bash\necho hi\n")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindBashScript, a.Kind)
}

func TestClassifyGitHubWorkflowByPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, filepath.Join(".github", "workflows", "ci.yml"), "on: push\njobs:\n  build:\n    runs-on: ubuntu-latest\n")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindYAMLWorkflowGitHub, a.Kind)
}

func TestClassifyK8sManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "deploy.yaml", "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: web\n")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindYAMLK8s, a.Kind)
}

func TestClassifyHelmChartBySiblingChartYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Chart.yaml", "apiVersion: v2\nname: demo\n")
	path := writeFile(t, dir, filepath.Join("templates", "deployment.yaml"), "kind: Deployment\n")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindYAMLHelmChart, a.Kind)
}

func TestClassifyTerraform(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "main.tf", "resource \"null_resource\" \"x\" {}\n")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindHCLTerraform, a.Kind)
}

func TestClassifyUnknown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "notes.txt", "just some text\n")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, a.Kind)
}

func TestParsedPopulatesResourcesForMultiDocK8s(t *testing.T) {
	dir := t.TempDir()
	content := "apiVersion: apps/v1\nkind: Deployment\nmetadata:\n  name: web\n---\napiVersion: cert-manager.io/v1\nkind: Certificate\nmetadata:\n  name: cert\n"
	path := writeFile(t, dir, "bundle.yaml", content)

	a, err := Classify(path)
	require.NoError(t, err)
	require.Equal(t, KindYAMLK8s, a.Kind)

	_, perr := a.Parsed()
	require.Nil(t, perr)
	require.Len(t, a.Resources, 2)
	assert.Equal(t, "Deployment", a.Resources[0].Kind)
	assert.Equal(t, "web", a.Resources[0].Name)
	assert.Equal(t, "Certificate", a.Resources[1].Kind)
}

func TestParsedMemoizesResult(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundle.yaml", "apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: cm\n")
	a, err := Classify(path)
	require.NoError(t, err)

	first, _ := a.Parsed()
	second, _ := a.Parsed()
	assert.Equal(t, first, second)
}

func TestEmptyFileClassifiesUnknown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.txt", "")
	a, err := Classify(path)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, a.Kind)
}
