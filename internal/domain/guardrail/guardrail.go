// Package guardrail decides whether a build's changes require human
// approval before deployment. Evaluation is pure and deterministic so it
// can run synchronously during build ingestion.
package guardrail

import "strings"

// Config holds the two externally configurable rule sets.
type Config struct {
	// ForbiddenPaths are protected area substrings (security, billing,
	// configuration). Any changed path containing one of them fires.
	ForbiddenPaths []string
	// DependencyFiles are lockfile/manifest names whose modification
	// always requires a human in the loop.
	DependencyFiles []string
}

// Result is the outcome of a guardrail evaluation.
type Result struct {
	RequiresApproval bool
	// Reason is a human-readable explanation, "; "-joined when more than
	// one rule fired. Empty when no approval is required.
	Reason string
}

// Evaluate checks every changed path against both rule sets.
// No changed files means no approval requirement.
func Evaluate(cfg Config, changedFiles []string) Result {
	if len(changedFiles) == 0 {
		return Result{}
	}

	var reasons []string

	for _, forbidden := range cfg.ForbiddenPaths {
		if anyContains(changedFiles, forbidden) {
			reasons = append(reasons, "protected area: "+forbidden)
		}
	}

	for _, depFile := range cfg.DependencyFiles {
		if anyContains(changedFiles, depFile) {
			reasons = append(reasons, "dependency change: "+depFile)
		}
	}

	if len(reasons) == 0 {
		return Result{}
	}
	return Result{
		RequiresApproval: true,
		Reason:           strings.Join(reasons, "; "),
	}
}

func anyContains(paths []string, needle string) bool {
	for _, p := range paths {
		if strings.Contains(p, needle) {
			return true
		}
	}
	return false
}

// DefaultConfig returns the built-in rule sets used when no configuration
// is supplied.
func DefaultConfig() Config {
	return Config{
		ForbiddenPaths: []string{
			"backend/app/core/security",
			"backend/app/services/billing",
			"backend/app/core/config.py",
			".env",
			"secrets",
		},
		DependencyFiles: []string{
			"requirements.txt",
			"package.json",
			"package-lock.json",
			"pnpm-lock.yaml",
			"yarn.lock",
			"Cargo.toml",
			"Cargo.lock",
			"go.mod",
			"go.sum",
		},
	}
}
