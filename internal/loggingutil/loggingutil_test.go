package loggingutil_test

import (
	"testing"

	"github.com/sumiya-kuroda/CAVEclient/internal/loggingutil"
)

func TestSubsystemSkipsEmptyParts(t *testing.T) {
	if got := loggingutil.Subsystem("chunkedgraph", "", ". client ."); got != "chunkedgraph.client" {
		t.Fatalf("unexpected subsystem %q", got)
	}
	if got := loggingutil.Subsystem(); got != "" {
		t.Fatalf("expected empty subsystem, got %q", got)
	}
}

func TestEnsureBaseNeverNil(t *testing.T) {
	if loggingutil.EnsureBase(nil) == nil {
		t.Fatal("EnsureBase returned nil")
	}
	if loggingutil.WithSubsystem(nil, "cli") == nil {
		t.Fatal("WithSubsystem returned nil")
	}
}
