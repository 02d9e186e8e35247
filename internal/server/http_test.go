package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"RewardVault/internal/buyer"
	"RewardVault/internal/core"
	"RewardVault/internal/event"
	"RewardVault/internal/lp"
	"RewardVault/internal/observability"
	"RewardVault/internal/reward"
	"RewardVault/internal/server"
)

// newTestServer wires a live core behind the router without Postgres or
// NATS. Endpoints that need the query service are not exercised here.
func newTestServer(t *testing.T) (*server.Server, *core.DeterministicCore, *observability.HealthChecker) {
	t.Helper()

	persistChan := make(chan core.CoreOutput, 16)
	projectionChan := make(chan core.CoreOutput, 16)

	c := core.NewDeterministicCore(0, buyer.DefaultConfig(), lp.DefaultConfig(),
		persistChan, projectionChan, nil, nil)
	health := observability.NewHealthChecker()

	s := server.New(server.Config{
		Core:   c,
		Health: health,
		Logger: zerolog.Nop(),
	})
	return s, c, health
}

func doRequest(t *testing.T, s *server.Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

// ==========================================
// Probes
// ==========================================

func TestServer_Probes(t *testing.T) {
	s, _, health := newTestServer(t)

	if rec := doRequest(t, s, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}

	if rec := doRequest(t, s, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready = %d, want 503", rec.Code)
	}

	health.SetReady(true)
	if rec := doRequest(t, s, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz after ready = %d, want 200", rec.Code)
	}
}

// ==========================================
// Status snapshot
// ==========================================

func TestServer_StatusReflectsCore(t *testing.T) {
	s, c, _ := newTestServer(t)

	entry := &event.BuyerEntry{
		EntryID:      uuid.New(),
		Participant:  uuid.New(),
		Contribution: 10_000,
		Balance:      50_000,
		Routed:       500,
		FeedSequence: 0,
		At:           reward.Tick{Seq: 1, WallMicros: 1_000_000},
	}
	if err := c.ProcessEvent(entry); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status struct {
		Sequence int64
		Buyer    struct {
			Pool    int64
			Members int
		}
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", status.Sequence)
	}
	if status.Buyer.Pool != 500 || status.Buyer.Members != 1 {
		t.Errorf("buyer pool=%d members=%d, want 500/1", status.Buyer.Pool, status.Buyer.Members)
	}
}

func TestServer_CurrentRound(t *testing.T) {
	s, _, _ := newTestServer(t)

	for _, engine := range []string{"buyer", "lp"} {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/rounds/"+engine+"/current")
		if rec.Code != http.StatusOK {
			t.Errorf("current round %s = %d, want 200", engine, rec.Code)
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/rounds/bogus/current")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus engine = %d, want 400", rec.Code)
	}
}

// ==========================================
// Input validation
// ==========================================

func TestServer_RejectsMalformedParams(t *testing.T) {
	s, _, _ := newTestServer(t)

	cases := []struct {
		name string
		path string
	}{
		{"bad participant uuid", "/api/v1/participants/not-a-uuid/claims"},
		{"bad round id", "/api/v1/rounds/buyer/notanumber"},
		{"bad ranked round id", "/api/v1/rounds/lp/notanumber/ranked"},
		{"bad claimable engine", "/api/v1/participants/" + uuid.NewString() + "/claims/bogus/1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tc.path)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s = %d, want 400", tc.path, rec.Code)
			}
		})
	}
}
