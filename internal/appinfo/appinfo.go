// Package appinfo reports build and runtime identity of the rewards service.
package appinfo

import (
	"os"
	"runtime"
	"runtime/debug"
	"strings"
)

const unknownVersion = "0.0.0-unknown"

// Info describes the running binary.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Revision    string `json:"revision,omitempty"`
	GoVersion   string `json:"go_version"`
	Environment string `json:"environment"`
}

// Get collects the current Info.
func Get() Info {
	return Info{
		Name:        "wannagonna-rewards",
		Version:     Version(),
		Revision:    revision(),
		GoVersion:   runtime.Version(),
		Environment: Environment(),
	}
}

// Environment normalizes GO_ENV, defaulting to development.
func Environment() string {
	switch env := strings.ToLower(strings.TrimSpace(os.Getenv("GO_ENV"))); env {
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	case "", "dev", "development":
		return "development"
	default:
		return env
	}
}

// Version prefers APP_VERSION, then the main module version from build info.
func Version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return unknownVersion
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}
