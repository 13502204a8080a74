package analyzer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/cc-devops-skills/corevalidate/pkg/artifact"
	"github.com/cc-devops-skills/corevalidate/pkg/finding"
)

// SecretScanAnalyzer detects hardcoded credentials in scripts and workflows
// via a regex + entropy approach , in the spirit of
// pkg/stringutil's redaction-pattern matching but aimed at secret values
// rather than secret-sounding identifier names. Candidate SSH/TLS private
// key blocks are additionally run through x/crypto/ssh's key parser, so a
// PEM-shaped placeholder in documentation doesn't get reported at the same
// severity as real key material.
type SecretScanAnalyzer struct {
	Base
}

func NewSecretScanAnalyzer() *SecretScanAnalyzer {
	return &SecretScanAnalyzer{Base{
		AnalyzerName: "secret-scan",
		Applies: []artifact.Kind{
			artifact.KindYAMLWorkflowGitHub, artifact.KindYAMLWorkflowGitLab, artifact.KindYAMLWorkflowAzure,
			artifact.KindBashScript, artifact.KindJenkinsfileDeclarative, artifact.KindJenkinsfileScripted,
			artifact.KindGroovySharedLib, artifact.KindDockerfile,
		},
	}}
}

var (
	awsAccessKeyRe     = regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)
	sshPrivateKeyRe    = regexp.MustCompile(`-----BEGIN (?:RSA|EC|OPENSSH|DSA)? ?PRIVATE KEY-----`)
	sshPrivateKeyEndRe = regexp.MustCompile(`-----END (?:RSA|EC|OPENSSH|DSA)? ?PRIVATE KEY-----`)
	genericTokenRe     = regexp.MustCompile(`(?i)\b(?:api[_-]?key|token|secret|password)\s*[:=]\s*['"]([A-Za-z0-9/+=_\-]{16,})['"]`)
)

func (a *SecretScanAnalyzer) Run(ctx context.Context, ac Context) ([]finding.Finding, error) {
	var findings []finding.Finding
	lines := strings.Split(string(ac.Artifact.Content), "\n")

	for i, line := range lines {
		lineNo := i + 1
		if awsAccessKeyRe.MatchString(line) {
			findings = append(findings, finding.New(
				"CORE-SECRET-AWS-ACCESS-KEY", finding.Error,
				"hardcoded AWS access key ID",
				finding.Location{Path: ac.Artifact.Path, Line: lineNo}, a.AnalyzerName,
			))
		}
		if sshPrivateKeyRe.MatchString(line) {
			findings = append(findings, sshPrivateKeyFinding(a.AnalyzerName, ac.Artifact.Path, lineNo, lines, i))
		}
		if match := genericTokenRe.FindStringSubmatch(line); match != nil && shannonEntropy(match[1]) > 3.5 {
			findings = append(findings, finding.New(
				"CORE-SECRET-HIGH-ENTROPY-VALUE", finding.Error,
				fmt.Sprintf("high-entropy value assigned to a credential-like key (entropy=%.2f)", shannonEntropy(match[1])),
				finding.Location{Path: ac.Artifact.Path, Line: lineNo}, a.AnalyzerName,
			))
		}
	}

	return findings, nil
}

// sshPrivateKeyFinding extracts the PEM block starting at lines[start] and
// attempts to parse it, distinguishing real key material from a header that
// merely looks like one (a placeholder, a doc snippet) so the severity
// reflects actual confidence rather than the regex match alone.
func sshPrivateKeyFinding(analyzerName, path string, lineNo int, lines []string, start int) finding.Finding {
	block := lines[start]
	for j := start + 1; j < len(lines) && j < start+200; j++ {
		block += "\n" + lines[j]
		if sshPrivateKeyEndRe.MatchString(lines[j]) {
			break
		}
	}

	if _, err := ssh.ParseRawPrivateKey([]byte(block)); err == nil {
		return finding.New(
			"CORE-SECRET-SSH-PRIVATE-KEY", finding.Error,
			"hardcoded SSH/TLS private key material (parses as a valid private key)",
			finding.Location{Path: path, Line: lineNo}, analyzerName,
		)
	}
	return finding.New(
		"CORE-SECRET-SSH-PRIVATE-KEY", finding.Warning,
		"private-key PEM header found but the block does not parse as a valid key (likely a placeholder or truncated example)",
		finding.Location{Path: path, Line: lineNo}, analyzerName,
	)
}

// shannonEntropy computes the Shannon entropy of s in bits per character,
// used to distinguish likely secret values from placeholder strings like
// "changeme" or "${SECRET}".
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	var entropy float64
	n := float64(len(s))
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}
