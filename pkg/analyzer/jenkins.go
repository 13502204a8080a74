package analyzer

import (
	"context"
	"regexp"
	"strings"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

// JenkinsLintAnalyzer enforces the @NonCPS discipline rule set  by
// textual matching over Groovy source, without a Groovy parser.
type JenkinsLintAnalyzer struct {
	Base
}

func NewJenkinsLintAnalyzer() *JenkinsLintAnalyzer {
	return &JenkinsLintAnalyzer{Base{
		AnalyzerName: "jenkins-lint",
		Applies:      []artifact.Kind{artifact.KindJenkinsfileScripted, artifact.KindGroovySharedLib},
	}}
}

var (
	nonCPSAnnotationRe = regexp.MustCompile(`^\s*@NonCPS\s*$`)
	methodDeclRe       = regexp.MustCompile(`^\s*(?:def|void|\w+)\s+\w+\s*\([^)]*\)\s*\{?\s*$`)
	pipelineStepCallRe *regexp.Regexp

	credentialRe = regexp.MustCompile(`(?i)(AKIA[0-9A-Z]{16}|-----BEGIN\s+(?:RSA|EC|OPENSSH|DSA)?\s*PRIVATE KEY-----|(?:api[_-]?key|token|secret)\s*[:=]\s*['"][A-Za-z0-9/+=_-]{16,}['"])`)
	systemGetenvRe  = regexp.MustCompile(`System\.getenv\s*\(`)
	threadSleepRe   = regexp.MustCompile(`Thread\.sleep\s*\(`)
	newFileTextRe   = regexp.MustCompile(`new\s+File\s*\([^)]*\)\.text`)
	rawURLReadRe    = regexp.MustCompile(`new\s+URL\s*\([^)]*\)\.(?:text|openConnection\s*\(\s*\))`)
	jsonSlurperRe   = regexp.MustCompile(`new\s+JsonSlurper\s*\(`)
	chainedCombinatorRe *regexp.Regexp
)

func init() {
	escaped := make([]string, len(constants.JenkinsPipelineSteps))
	for i, s := range constants.JenkinsPipelineSteps {
		escaped[i] = regexp.QuoteMeta(s)
	}
	pipelineStepCallRe = regexp.MustCompile(`\b(` + strings.Join(escaped, "|") + `)\s*\(`)

	combinators := make([]string, len(constants.JenkinsNonCPSCombinators))
	for i, c := range constants.JenkinsNonCPSCombinators {
		combinators[i] = regexp.QuoteMeta(c)
	}
	chainedCombinatorRe = regexp.MustCompile(`\.(` + strings.Join(combinators, "|") + `)\s*\{`)
}

// groovyMethod is one textually-delimited method body found by scanning
// brace depth; good enough for the rules, which never need full parsing.
type groovyMethod struct {
	annotated bool
	startLine int
	endLine   int
	lines     []string
}

func (a *JenkinsLintAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	var findings []finding.Finding
	lines := strings.Split(string(ac.Artifact.Content), "\n")

	for _, m := range splitMethods(lines) {
		findings = append(findings, a.checkMethod(ac.Artifact.Path, m)...)
	}

	for i, line := range lines {
		if credentialRe.MatchString(line) {
			findings = append(findings, finding.New(
				"JENKINS-HARDCODED-CREDENTIAL", finding.Error,
				"hardcoded credential pattern detected",
				finding.Location{Path: ac.Artifact.Path, Line: i + 1}, a.AnalyzerName,
			))
		}
	}

	return findings, nil
}

func (a *JenkinsLintAnalyzer) checkMethod(path string, m groovyMethod) []finding.Finding {
	var findings []finding.Finding
	body := strings.Join(m.lines, "\n")

	if m.annotated {
		if loc := pipelineStepCallRe.FindStringIndex(body); loc != nil {
			line := m.startLine + strings.Count(body[:loc[0]], "\n")
			findings = append(findings, finding.New(
				"JENKINS-NONCPS-STEP-CALL", finding.Error,
				"@NonCPS method invokes a pipeline step; pipeline steps require the CPS interpreter",
				finding.Location{Path: path, Line: line}, "jenkins-lint",
			))
		}
	} else {
		if chainedCombinatorRe.MatchString(body) {
			findings = append(findings, finding.New(
				"JENKINS-NONCPS-RECOMMENDED", finding.Info,
				"method transforms a collection via chained combinators and should be annotated @NonCPS",
				finding.Location{Path: path, Line: m.startLine}, "jenkins-lint",
			))
		}
	}

	for i, line := range m.lines {
		lineNo := m.startLine + i
		switch {
		case systemGetenvRe.MatchString(line):
			findings = append(findings, finding.New(
				"JENKINS-USE-ENV-GLOBAL", finding.Warning,
				"use the pipeline env global instead of System.getenv",
				finding.Location{Path: path, Line: lineNo}, "jenkins-lint",
			))
		case !m.annotated && (threadSleepRe.MatchString(line) || newFileTextRe.MatchString(line) || rawURLReadRe.MatchString(line) || jsonSlurperRe.MatchString(line)):
			findings = append(findings, finding.New(
				"JENKINS-NONCPS-UNSAFE-CALL", finding.Warning,
				"call is unsafe outside a @NonCPS method",
				finding.Location{Path: path, Line: lineNo}, "jenkins-lint",
			))
		}
	}

	return findings
}

// splitMethods scans for method declarations and captures their brace-delimited
// body along with whether the preceding line was a @NonCPS annotation.
func splitMethods(lines []string) []groovyMethod {
	var methods []groovyMethod
	annotatedNext := false

	for i := 0; i < len(lines); i++ {
		if nonCPSAnnotationRe.MatchString(lines[i]) {
			annotatedNext = true
			continue
		}
		if methodDeclRe.MatchString(lines[i]) {
			start := i
			depth := strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
			end := i
			for depth > 0 && end+1 < len(lines) {
				end++
				depth += strings.Count(lines[end], "{") - strings.Count(lines[end], "}")
			}
			methods = append(methods, groovyMethod{
				annotated: annotatedNext,
				startLine: start + 1,
				endLine:   end + 1,
				lines:     lines[start : end+1],
			})
			annotatedNext = false
			continue
		}
		annotatedNext = false
	}
	return methods
}
