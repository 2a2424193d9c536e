package config

import (
	"errors"
	"fmt"
	"strings"
)

// AuditSink names a destination for audit events.
type AuditSink string

const (
	// AuditSinkFile appends lines to StorageConfig.AuditLogPath.
	AuditSinkFile AuditSink = "file"
	// AuditSinkPostgres inserts rows into the audit_events table.
	AuditSinkPostgres AuditSink = "postgres"
)

// ValidAuditSinks returns all valid audit sink names.
func ValidAuditSinks() []AuditSink {
	return []AuditSink{AuditSinkFile, AuditSinkPostgres}
}

// AuditConfig selects where audit events go.
type AuditConfig struct {
	// Sinks is a comma-delimited list of sink names.
	Sinks string `env:"SINKS" envDefault:"file"`
}

// EnabledSinks returns the parsed sink set.
func (c AuditConfig) EnabledSinks() (map[AuditSink]bool, error) {
	return ParseAuditSinks(c.Sinks)
}

// ParseAuditSinks parses a comma-delimited string of sink names.
// It returns an error if any name is unknown or if none is given.
func ParseAuditSinks(s string) (map[AuditSink]bool, error) {
	sinks := make(map[AuditSink]bool)

	if strings.TrimSpace(s) == "" {
		return sinks, errors.New("at least one audit sink must be specified")
	}

	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}

		sink := AuditSink(name)
		switch sink {
		case AuditSinkFile, AuditSinkPostgres:
			sinks[sink] = true
		default:
			return nil, fmt.Errorf("invalid audit sink: %q (valid options: file, postgres)", name)
		}
	}

	if len(sinks) == 0 {
		return nil, errors.New("at least one valid audit sink must be specified")
	}
	return sinks, nil
}
