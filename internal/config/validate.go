package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path names the flag.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// MetricsBackends lists the accepted --metrics-backend values.
var MetricsBackends = []string{"none", "pushgateway", "datadog"}

// Validate checks cfg against the registered storage kinds. It does not
// mutate cfg.
func Validate(cfg *Config, kinds []string) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !contains(kinds, cfg.Driver) {
		add(SeverityError, "driver", "unknown driver %q (supported: %s)", cfg.Driver, strings.Join(kinds, ", "))
	}
	if cfg.DSN == "" && cfg.Driver != "sqlite" {
		if cfg.DBPassword == "" {
			add(SeverityError, EnvPassword, "password is required when --dsn is not given")
		}
		if strings.TrimSpace(cfg.DBHost) == "" {
			add(SeverityError, "db-host", "must not be empty")
		}
	}
	if strings.TrimSpace(cfg.DBName) == "" && cfg.DSN == "" {
		add(SeverityError, "db-name", "must not be empty")
	}
	issues = append(issues, ValidateOffline(cfg)...)

	switch cfg.MetricsBackend {
	case "none":
	case "pushgateway":
		if cfg.PushgatewayURL == "" {
			add(SeverityError, "pushgateway-url", "required when metrics-backend=pushgateway")
		}
	case "datadog":
		if cfg.StatsdAddr == "" {
			add(SeverityError, "statsd-addr", "required when metrics-backend=datadog")
		}
	default:
		add(SeverityError, "metrics-backend", "unknown backend %q (supported: %s)",
			cfg.MetricsBackend, strings.Join(MetricsBackends, ", "))
	}

	if cfg.Driver == "sqlite" && cfg.DBPassword != "" {
		add(SeverityWarning, EnvPassword, "ignored for sqlite")
	}
	return issues
}

// ValidateOffline checks only the settings that matter when no database is
// opened, as for a bare --dump-schema.
func ValidateOffline(cfg *Config) []Issue {
	if cfg.JunkShortfall == 0 || cfg.JunkShortfall < UseDescriptorShortfall {
		return []Issue{{
			Severity: SeverityError,
			Path:     "junk-shortfall",
			Message:  fmt.Sprintf("must be > 0 (or -1 for the descriptor value), got %d", cfg.JunkShortfall),
		}}
	}
	return nil
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
