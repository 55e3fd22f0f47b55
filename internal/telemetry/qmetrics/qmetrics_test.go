package qmetrics

import (
	"testing"
	"time"
)

func TestDisabledByDefault(t *testing.T) {
	modEnabled.Store(false)
	if Enabled() {
		t.Fatal("expected instrumentation to start disabled")
	}
	// These must be no-ops and must not panic when disabled.
	ObserveEnqueue("sfq", true)
	ObserveDequeue("sfq", time.Millisecond)
	ObserveAQMDrop("fqcodel", 3)
	SetGauges("sfq", 1000, 4)
}

func TestEnableTogglesState(t *testing.T) {
	Enable(Config{Enabled: true})
	defer Enable(Config{Enabled: false})
	if !Enabled() {
		t.Fatal("expected Enable(Config{Enabled: true}) to report enabled")
	}
}
