package telemetry

import (
	"context"
	"testing"
)

func TestNilSinkMethodsAreNoOps(t *testing.T) {
	var s *Sink

	s.Publish(0, 1, "schema")
	if s.Aborted() {
		t.Error("nil Sink reported aborted")
	}
	if err := s.RecordPhase(context.Background(), PhaseRow{Phase: "schema"}); err != nil {
		t.Errorf("RecordPhase on nil Sink: %v", err)
	}
	phases, err := s.Phases(context.Background(), "run-1")
	if err != nil || phases != nil {
		t.Errorf("Phases on nil Sink = (%v, %v), want (nil, nil)", phases, err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil Sink: %v", err)
	}
}

func TestOpenWithZeroConfigProducesInertSink(t *testing.T) {
	s, err := Open(context.Background(), "run-1", Config{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.ch != nil || s.nc != nil {
		t.Error("Open with a zero Config dialed a transport")
	}
	// Publish/RecordPhase/Aborted must stay harmless with both transports absent.
	s.Publish(0, 1, "schema")
	if s.Aborted() {
		t.Error("inert Sink reported aborted")
	}
	if err := s.RecordPhase(context.Background(), PhaseRow{Phase: "schema"}); err != nil {
		t.Errorf("RecordPhase: %v", err)
	}
}
