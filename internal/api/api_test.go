package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/perfects"
	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// failingDB is a store.DB whose every call fails.
type failingDB struct{}

var errDBDown = errors.New("database unavailable")

func (failingDB) Close() error                                         { return nil }
func (failingDB) Migrate() error                                       { return nil }
func (failingDB) SaveSession(context.Context, *store.Session) error    { return errDBDown }
func (failingDB) GetSession(context.Context, string) (*store.Session, error) {
	return nil, errDBDown
}
func (failingDB) ListSessions(context.Context, store.SessionsQuery) (*store.SessionsList, error) {
	return nil, errDBDown
}
func (failingDB) Leaderboard(context.Context, int) ([]store.LeaderboardEntry, error) {
	return nil, errDBDown
}
func (failingDB) AllSessions(context.Context) ([]store.Session, error) { return nil, errDBDown }

func newTestServer(t *testing.T, withClassifier bool) *Server {
	t.Helper()
	db, err := store.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	prover, err := zkvm.NewProver("test", testKey)
	if err != nil {
		t.Fatalf("NewProver: %v", err)
	}

	var classifier *perfects.Classifier
	if withClassifier {
		classifier, err = perfects.New("")
		if err != nil {
			t.Fatalf("perfects.New: %v", err)
		}
	}
	return NewServer(db, prover, classifier)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode body: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func perfectsPtr(n uint32) *uint32 { return &n }

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t, false).Routes()

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := do(t, h, "GET", path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected status 200, got %d: %s", path, w.Code, w.Body.String())
		}
		if w.Header().Get("X-Engine-Version") == "" {
			t.Errorf("GET %s: missing X-Engine-Version header", path)
		}
	}

	w := do(t, h, "GET", "/health", nil)
	resp := decode[HealthCheckResponse](t, w)
	if resp.Status != HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s: %+v", resp.Status, resp.Checks)
	}
	for _, name := range []string{"kernel", "prover", "database"} {
		if resp.Checks[name].Status != HealthStatusHealthy {
			t.Errorf("check %s = %+v", name, resp.Checks[name])
		}
	}
}

func TestReadinessWithBrokenDatabase(t *testing.T) {
	prover, _ := zkvm.NewProver("test", testKey)
	h := NewServer(failingDB{}, prover, nil).Routes()

	if w := do(t, h, "GET", "/health/ready", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
	if w := do(t, h, "GET", "/health", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestProveScoreAndVerify(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "POST", "/api/v1/prove-score", ProveScoreRequest{
		Player:        "ada",
		ReactionTimes: []float64{200, 400},
		TotalPerfects: perfectsPtr(3),
		RandomSeed:    42,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ProveScoreResponse](t, w)

	want := engine.GameResult{AvgReaction: 300, IQScore: 180, Consistency: 66, Rounds: 2}
	if resp.Result != want {
		t.Errorf("result = %+v, want %+v", resp.Result, want)
	}
	if resp.AvgReactionMs != "300.00" {
		t.Errorf("avg_reaction_ms = %q, want 300.00", resp.AvgReactionMs)
	}
	if resp.SessionID == "" || resp.Proof == nil || resp.Proof.Seal == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}

	w = do(t, h, "POST", "/api/v1/verify", resp.Proof)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	vr := decode[VerifyResponse](t, w)
	if !vr.Valid || vr.Result != want {
		t.Errorf("verify response = %+v", vr)
	}

	w = do(t, h, "GET", "/api/v1/sessions/"+resp.SessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get session: expected status 200, got %d", w.Code)
	}
	sess := decode[store.Session](t, w)
	if sess.Player != "ada" || sess.IQScore != 180 || sess.RandomSeed != 42 || sess.Seal != resp.Proof.Seal {
		t.Errorf("stored session = %+v", sess)
	}
}

func TestVerifyRejectsTamperedReceipt(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "POST", "/api/v1/prove-score", ProveScoreRequest{ReactionTimes: []float64{1000, 1500}})
	if w.Code != http.StatusOK {
		t.Fatalf("prove: %d %s", w.Code, w.Body.String())
	}
	good := decode[ProveScoreResponse](t, w).Proof

	forged := *good
	forged.Journal = append([]byte(nil), good.Journal...)
	forged.Journal[4] = 180 // iq_score low byte

	otherImage := *good
	otherImage.ImageID = strings.Repeat("0", 64)

	tests := []struct {
		name    string
		receipt zkvm.Receipt
		reason  string
	}{
		{"edited journal", forged, "digest_mismatch"},
		{"wrong image", otherImage, "image_mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/v1/verify", tt.receipt)
			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("Expected 422, got %d: %s", w.Code, w.Body.String())
			}
			if got := w.Header().Get("X-Error-Type"); got != ErrTypeVerification {
				t.Errorf("X-Error-Type = %q", got)
			}
			e := decode[EngineError](t, w)
			if e.Context["reason"] != tt.reason {
				t.Errorf("reason = %v, want %s", e.Context["reason"], tt.reason)
			}
		})
	}
}

func TestLegacyProveScoreEmptySession(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "POST", "/prove-score", `{"reaction_times": [], "total_perfects": 5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ProveScoreResponse](t, w)
	if resp.Result != engine.EmptyResult() {
		t.Errorf("result = %+v, want empty result", resp.Result)
	}
	if resp.AvgReactionMs != "0.00" {
		t.Errorf("avg_reaction_ms = %q", resp.AvgReactionMs)
	}
}

func TestProveScoreValidation(t *testing.T) {
	h := newTestServer(t, true).Routes()

	tooMany := make([]float64, maxRounds+1)
	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"invalid json", `{"reaction_times": [1,`, ""},
		{"too many rounds", ProveScoreRequest{ReactionTimes: tooMany}, "reaction_times"},
		{"negative time", ProveScoreRequest{ReactionTimes: []float64{200, -1}}, "reaction_times"},
		{"overflows float32", ProveScoreRequest{ReactionTimes: []float64{1e39}}, "reaction_times"},
		{"long player", ProveScoreRequest{Player: strings.Repeat("x", maxPlayerLen+1)}, "player"},
		{"targets without clicks", ProveScoreRequest{ReactionTimes: []float64{200}, TargetsMs: []float64{1000}}, "targets_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/v1/prove-score", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
			}
			e := decode[EngineError](t, w)
			if e.Type != ErrTypeValidation {
				t.Errorf("type = %s", e.Type)
			}
			if tt.field != "" && e.Context["field"] != tt.field {
				t.Errorf("field = %v, want %s", e.Context["field"], tt.field)
			}
			if e.RequestID == "" {
				t.Error("missing request id")
			}
		})
	}
}

func TestProveScoreRejectsOverflowingSum(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "POST", "/api/v1/prove-score", `{"player":"eve","reaction_times":[3e38,3e38]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if e := decode[EngineError](t, w); e.Context["field"] != "reaction_times" {
		t.Errorf("field = %v, want reaction_times", e.Context["field"])
	}

	for _, path := range []string{"/api/v1/sessions", "/api/v1/leaderboard"} {
		w := do(t, h, "GET", path, nil)
		if w.Code != http.StatusOK || w.Body.Len() == 0 {
			t.Fatalf("GET %s: status %d, body %q", path, w.Code, w.Body.String())
		}
	}
	if list := decode[SessionsResponse](t, do(t, h, "GET", "/api/v1/sessions", nil)); list.TotalCount != 0 {
		t.Errorf("Expected no stored sessions, got %d", list.TotalCount)
	}
}

func TestFormatAvg(t *testing.T) {
	if got, err := formatAvg(281.25); err != nil || got != "281.25" {
		t.Errorf("formatAvg(281.25) = %q, %v", got, err)
	}
	for _, v := range []float32{float32(math.Inf(1)), float32(math.NaN())} {
		if _, err := formatAvg(v); err == nil {
			t.Errorf("formatAvg(%v): expected error", v)
		}
	}
}

func TestProveScoreClassifiesPerfects(t *testing.T) {
	h := newTestServer(t, true).Routes()

	req := ProveScoreRequest{
		ReactionTimes: []float64{310, 280, 295, 300},
		Clicks:        []engine.Click{{TimestampMs: 2000}, {TimestampMs: 2099}, {TimestampMs: 2100}, {TimestampMs: 1950}},
		TargetsMs:     []float64{2000, 2000, 2000, 2000},
		TotalPerfects: perfectsPtr(0),
	}
	w := do(t, h, "POST", "/api/v1/prove-score", req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode[ProveScoreResponse](t, w).Result
	want := engine.Score(engine.GameInputs{ReactionTimes: []float32{310, 280, 295, 300}, TotalPerfects: 3})
	if got != want {
		t.Errorf("result = %+v, want %+v (3 classified perfects)", got, want)
	}
}

func TestProveScoreTargetsWithoutClassifier(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "POST", "/api/v1/prove-score", ProveScoreRequest{
		ReactionTimes: []float64{300},
		Clicks:        []engine.Click{{TimestampMs: 2000}},
		TargetsMs:     []float64{2000},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSessionsAndLeaderboard(t *testing.T) {
	h := newTestServer(t, false).Routes()

	plays := []ProveScoreRequest{
		{Player: "ada", ReactionTimes: []float64{1000, 1500}},
		{Player: "ada", ReactionTimes: []float64{200, 400}, TotalPerfects: perfectsPtr(3)},
		{Player: "bob", ReactionTimes: []float64{400, 600}},
	}
	for _, p := range plays {
		if w := do(t, h, "POST", "/api/v1/prove-score", p); w.Code != http.StatusOK {
			t.Fatalf("prove: %d %s", w.Code, w.Body.String())
		}
	}

	w := do(t, h, "GET", "/api/v1/sessions?player=ada&perPage=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	list := decode[SessionsResponse](t, w)
	if list.TotalCount != 2 || len(list.Sessions) != 1 || list.TotalPages != 2 {
		t.Errorf("sessions page = %+v", list.SessionsList)
	}

	w = do(t, h, "GET", "/api/v1/leaderboard?limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	lb := decode[LeaderboardResponse](t, w)
	if len(lb.Entries) != 2 {
		t.Fatalf("leaderboard = %+v", lb.Entries)
	}
	if lb.Entries[0].Player != "ada" || lb.Entries[0].IQScore != 180 || lb.Entries[1].Player != "bob" || lb.Entries[1].IQScore != 142 {
		t.Errorf("leaderboard = %+v", lb.Entries)
	}

	for _, path := range []string{"/api/v1/sessions?page=0", "/api/v1/sessions?page=9223372036854775807", "/api/v1/sessions?perPage=abc", "/api/v1/leaderboard?limit=1000"} {
		if w := do(t, h, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestGetSessionNotFound(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "GET", "/api/v1/sessions/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	if e := decode[EngineError](t, w); e.Type != ErrTypeNotFound {
		t.Errorf("type = %s", e.Type)
	}
}

func TestStoreFailureIsInternalError(t *testing.T) {
	prover, _ := zkvm.NewProver("test", testKey)
	h := NewServer(failingDB{}, prover, nil).Routes()

	w := do(t, h, "POST", "/api/v1/prove-score", ProveScoreRequest{ReactionTimes: []float64{300}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	if got := w.Header().Get("X-Error-Category"); got != string(CategorySystem) {
		t.Errorf("X-Error-Category = %q", got)
	}
}

func TestSpawns(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "GET", "/api/v1/spawns?seed=42&count=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	resp := decode[SpawnsResponse](t, w)
	want := engine.Floats(42, 5)
	if len(resp.Values) != len(want) {
		t.Fatalf("got %d values, want %d", len(resp.Values), len(want))
	}
	for i := range want {
		if resp.Values[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, resp.Values[i], want[i])
		}
	}

	for _, path := range []string{"/api/v1/spawns?seed=-1", "/api/v1/spawns?count=0", "/api/v1/spawns?count=100000"} {
		if w := do(t, h, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, false).Routes()

	w := do(t, h, "OPTIONS", "/api/v1/prove-score", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestRequestLogUsesRoutePattern(t *testing.T) {
	s := newTestServer(t, false)
	var buf bytes.Buffer
	s.logger = log.New(&buf, "", 0)
	h := s.Routes()

	do(t, h, "GET", "/api/v1/sessions/missing", nil)

	line := buf.String()
	for _, want := range []string{"route=/api/v1/sessions/{id}", "status=404", "error_type=" + ErrTypeNotFound} {
		if !strings.Contains(line, want) {
			t.Errorf("log %q missing %s", line, want)
		}
	}
	if strings.Contains(line, "/sessions/missing") {
		t.Errorf("log %q should not carry the raw path", line)
	}
}

func TestGetErrorCategory(t *testing.T) {
	tests := map[string]ErrorCategory{
		ErrTypeValidation:   CategoryValidation,
		ErrTypeNotFound:     CategoryValidation,
		ErrTypeVerification: CategoryProof,
		ErrTypeTimeout:      CategoryTimeout,
		ErrTypeInternal:     CategorySystem,
	}
	for errType, want := range tests {
		if got := GetErrorCategory(errType); got != want {
			t.Errorf("GetErrorCategory(%s) = %s, want %s", errType, got, want)
		}
	}
}
