package config

import (
	"os"
	"strings"
)

// DeploymentMode captures how the server was installed, which decides how
// strictly credentials are validated: a .env full of local-Docker defaults
// is fine on a contributor laptop and unacceptable on a packaged install
// or in CI.
type DeploymentMode string

const (
	// ModeDevelopment: running from a source checkout, services under
	// local Docker, secrets in .env.
	ModeDevelopment DeploymentMode = "development"

	// ModePackaged: installed binary pointing at real databases; secrets
	// come from the environment or the OS keychain.
	ModePackaged DeploymentMode = "packaged"

	// ModeCI: pipeline execution; secrets from environment only, strict
	// validation, fail fast.
	ModeCI DeploymentMode = "ci"
)

// DetectMode resolves the deployment context: an explicit CODEINTEL_MODE
// wins, then CI markers, then source-checkout markers; anything else is a
// packaged install.
func DetectMode() DeploymentMode {
	if mode := os.Getenv("CODEINTEL_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "development", "dev":
			return ModeDevelopment
		case "packaged", "pkg", "production", "prod":
			return ModePackaged
		case "ci", "cicd":
			return ModeCI
		}
	}

	if isCI() {
		return ModeCI
	}

	for _, marker := range []string{".env", "go.mod", "Makefile"} {
		if _, err := os.Stat(marker); err == nil {
			return ModeDevelopment
		}
	}
	return ModePackaged
}

func isCI() bool {
	for _, envVar := range []string{
		"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI",
		"JENKINS_URL", "BUILDKITE", "TF_BUILD",
	} {
		if os.Getenv(envVar) != "" {
			return true
		}
	}
	return false
}

func (m DeploymentMode) String() string {
	return string(m)
}

// AllowsDevelopmentDefaults reports whether local-Docker .env passwords
// are acceptable.
func (m DeploymentMode) AllowsDevelopmentDefaults() bool {
	return m == ModeDevelopment
}

// RequiresSecureCredentials reports whether default or localhost
// credentials must be rejected outright.
func (m DeploymentMode) RequiresSecureCredentials() bool {
	return m == ModePackaged || m == ModeCI
}

// Description is the human-readable form used in validation output.
func (m DeploymentMode) Description() string {
	switch m {
	case ModeDevelopment:
		return "local development checkout"
	case ModePackaged:
		return "packaged installation"
	case ModeCI:
		return "CI/CD pipeline"
	default:
		return "unknown mode"
	}
}

// ConfigSource names where credentials are expected to come from in this
// mode, used in validation error hints.
func (m DeploymentMode) ConfigSource() string {
	switch m {
	case ModeDevelopment:
		return ".env file"
	case ModePackaged:
		return "environment variables or the OS keychain"
	case ModeCI:
		return "environment variables only"
	default:
		return "unknown"
	}
}
