package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusEndpointReflectsPhaseProgress(t *testing.T) {
	state := NewState()
	state.BeginPhase(0, 3, "schema")
	state.EndPhase()
	state.BeginPhase(1, 3, "metadata")

	server := NewServer(state, Config{Port: 8090})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.PhaseCount != 3 || resp.PhasesRun != 2 {
		t.Errorf("unexpected status: %+v", resp)
	}
	if resp.CurrentPhase != "metadata" {
		t.Errorf("CurrentPhase = %q, want metadata", resp.CurrentPhase)
	}
	if resp.CancelRequested {
		t.Error("CancelRequested should be false before /cancel is called")
	}
}

func TestPhasesEndpointListsEachRecordedPhase(t *testing.T) {
	state := NewState()
	state.BeginPhase(0, 2, "schema")
	state.EndPhase()
	state.BeginPhase(1, 2, "metadata")
	state.EndPhase()

	server := NewServer(state, Config{})
	router := server.Router()

	req := httptest.NewRequest(http.MethodGet, "/phases", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var phases []PhaseStatus
	if err := json.NewDecoder(rec.Body).Decode(&phases); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("len(phases) = %d, want 2", len(phases))
	}
	if phases[0].Name != "schema" || !phases[0].Done {
		t.Errorf("unexpected phase[0]: %+v", phases[0])
	}
	if phases[1].Name != "metadata" || !phases[1].Done {
		t.Errorf("unexpected phase[1]: %+v", phases[1])
	}
}

func TestCancelEndpointSetsCancelRequestedWithoutAuth(t *testing.T) {
	state := NewState()
	server := NewServer(state, Config{})
	router := server.Router()

	req := httptest.NewRequest(http.MethodPost, "/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !state.CancelRequested() {
		t.Error("expected CancelRequested to be true after POST /cancel")
	}
}

func TestCancelEndpointRejectsMissingAPIKeyWhenConfigured(t *testing.T) {
	state := NewState()
	server := NewServer(state, Config{APIKeys: []string{"secret"}})
	router := server.Router()

	req := httptest.NewRequest(http.MethodPost, "/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if state.CancelRequested() {
		t.Error("cancel should not be recorded without a valid API key")
	}

	req2 := httptest.NewRequest(http.MethodPost, "/cancel", nil)
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusAccepted {
		t.Fatalf("status with valid key = %d, want 202", rec2.Code)
	}
	if !state.CancelRequested() {
		t.Error("expected CancelRequested to be true after an authorized POST /cancel")
	}
}
