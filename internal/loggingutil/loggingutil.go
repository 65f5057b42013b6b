// Package loggingutil holds the pslog helpers shared by the client and CLI.
package loggingutil

import (
	"strings"

	"pkt.systems/pslog"
)

// SubsystemKey is the field that carries the dotted subsystem path.
const SubsystemKey = pslog.TrustedString("sys")

// EnsureBase returns b, or a disabled logger when b is nil.
func EnsureBase(b pslog.Base) pslog.Base {
	if b != nil {
		return b
	}
	return pslog.NoopLogger()
}

// Subsystem joins the non-empty parts with dots.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem tags every entry written through b with the subsystem. Loggers
// that only implement pslog.Base are returned unchanged.
func WithSubsystem(b pslog.Base, subsystem string) pslog.Base {
	b = EnsureBase(b)
	subsystem = Subsystem(subsystem)
	if subsystem == "" {
		return b
	}
	if full, ok := b.(pslog.Logger); ok {
		return full.With(SubsystemKey, subsystem)
	}
	return b
}
