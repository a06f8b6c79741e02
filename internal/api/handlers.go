package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/perfects"
	"github.com/MJE43/reflex-iq/internal/store"
	"github.com/MJE43/reflex-iq/internal/zkvm"
)

// handleProveScore runs the kernel over a finished session, seals the
// journal, stores the receipt and returns it.
func (s *Server) handleProveScore(w http.ResponseWriter, r *http.Request) {
	var req ProveScoreRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]any{
			"error": err.Error(),
		})
		return
	}

	times, err := ValidateProveScoreRequest(&req)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			s.errorHandler.HandleValidationError(w, r, fe.Field, fe.Message)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, err.Error(), nil)
		return
	}

	var totalPerfects uint32
	if req.TotalPerfects != nil {
		totalPerfects = *req.TotalPerfects
	}
	if len(req.TargetsMs) > 0 {
		n, err := s.countPerfects(&req, times)
		if err != nil {
			if errors.Is(err, perfects.ErrLengthMismatch) || s.classifier == nil {
				s.errorHandler.HandleValidationError(w, r, "targets_ms", err.Error())
				return
			}
			s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "Perfect classifier failed", map[string]any{
				"error": err.Error(),
			})
			return
		}
		if req.TotalPerfects != nil && *req.TotalPerfects != n {
			s.logger.Printf("perfects_overridden reported=%d classified=%d", *req.TotalPerfects, n)
		}
		totalPerfects = n
	}

	receipt, err := s.prover.Prove(r.Context(), gameInputs(&req, times, totalPerfects))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.writeError(w, r, http.StatusRequestTimeout, ErrTypeTimeout, "Proving timed out", nil)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeProving, "Proving failed", map[string]any{
			"error": err.Error(),
		})
		return
	}

	result, err := s.verifier.Verify(receipt)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeProving, "Fresh receipt failed verification", map[string]any{
			"error": err.Error(),
		})
		return
	}

	avgMs, err := formatAvg(result.AvgReaction)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeProving, "Kernel committed an unusable average", map[string]any{
			"error": err.Error(),
		})
		return
	}

	sess := store.NewSession(req.Player, req.RandomSeed, result, receipt, EngineVersion)
	if err := s.db.SaveSession(r.Context(), sess); err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "Failed to store session", map[string]any{
			"error": err.Error(),
		})
		return
	}

	s.logger.Printf(
		"prove_completed session_id=%s rounds=%d iq_score=%d consistency=%d perfects=%d journal_digest=%s",
		sess.ID, result.Rounds, result.IQScore, result.Consistency, totalPerfects, receipt.JournalDigest,
	)

	s.writeJSON(w, http.StatusOK, ProveScoreResponse{
		SessionID:     sess.ID,
		Proof:         receipt,
		Result:        result,
		AvgReactionMs: avgMs,
		EngineVersion: EngineVersion,
	})
}

// formatAvg renders the committed average with two decimals.
func formatAvg(avg float32) (string, error) {
	if math.IsNaN(float64(avg)) || math.IsInf(float64(avg), 0) {
		return "", fmt.Errorf("avg_reaction %v is not finite", avg)
	}
	return decimal.NewFromFloat32(avg).StringFixed(2), nil
}

func (s *Server) countPerfects(req *ProveScoreRequest, times []float32) (uint32, error) {
	if s.classifier == nil {
		return 0, errors.New("perfect classification is not enabled on this server")
	}
	rounds, err := perfects.Rounds(req.Clicks, req.TargetsMs, times)
	if err != nil {
		return 0, err
	}
	return s.classifier.Count(rounds)
}

// handleVerify checks a receipt and returns the result it attests.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var receipt zkvm.Receipt
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrTypeValidation, "Invalid JSON format", map[string]any{
			"error": err.Error(),
		})
		return
	}

	result, err := s.verifier.Verify(&receipt)
	if err != nil {
		s.writeError(w, r, http.StatusUnprocessableEntity, ErrTypeVerification, err.Error(), map[string]any{
			"reason":   verifyReason(err),
			"image_id": receipt.ImageID,
		})
		return
	}

	s.writeJSON(w, http.StatusOK, VerifyResponse{
		Valid:         true,
		ImageID:       receipt.ImageID,
		Result:        result,
		EngineVersion: EngineVersion,
	})
}

func verifyReason(err error) string {
	switch {
	case errors.Is(err, zkvm.ErrImageMismatch):
		return "image_mismatch"
	case errors.Is(err, zkvm.ErrDigestMismatch):
		return "digest_mismatch"
	case errors.Is(err, zkvm.ErrSealMismatch):
		return "seal_mismatch"
	case errors.Is(err, zkvm.ErrInvariant):
		return "invariant_violation"
	default:
		return "malformed_journal"
	}
}

// handleListSessions returns a page of stored sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := store.SessionsQuery{Player: r.URL.Query().Get("player")}

	var ok bool
	if q.Page, ok = s.intParam(w, r, "page", 1, 1, maxPage); !ok {
		return
	}
	if q.PerPage, ok = s.intParam(w, r, "perPage", 50, 1, maxPerPage); !ok {
		return
	}

	list, err := s.db.ListSessions(r.Context(), q)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "Failed to list sessions", map[string]any{
			"error": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, SessionsResponse{SessionsList: list, EngineVersion: EngineVersion})
}

// handleGetSession returns one stored session with its receipt.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.db.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, ErrTypeNotFound, "Session not found", map[string]any{
			"session_id": id,
		})
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "Failed to load session", map[string]any{
			"error": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// handleLeaderboard returns each player's best session.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit", 10, 1, maxLeaderboard)
	if !ok {
		return
	}
	entries, err := s.db.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrTypeInternal, "Failed to load leaderboard", map[string]any{
			"error": err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, LeaderboardResponse{Entries: entries, EngineVersion: EngineVersion})
}

// handleSpawns returns the deterministic spawn floats for a seed, so the
// client and an auditor derive the same schedule.
func (s *Server) handleSpawns(w http.ResponseWriter, r *http.Request) {
	var seed uint64
	if raw := r.URL.Query().Get("seed"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.errorHandler.HandleValidationError(w, r, "seed", "must be an unsigned 64-bit integer")
			return
		}
		seed = v
	}
	count, ok := s.intParam(w, r, "count", 10, 1, maxSpawnCount)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, SpawnsResponse{
		Seed:          seed,
		Count:         count,
		Values:        engine.Floats(seed, count),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}

// intParam reads an optional integer query parameter. max <= 0 means no
// upper bound. It writes the validation error itself and reports false.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || (max > 0 && v > max) {
		msg := "must be an integer >= " + strconv.Itoa(min)
		if max > 0 {
			msg += " and <= " + strconv.Itoa(max)
		}
		s.errorHandler.HandleValidationError(w, r, name, msg)
		return 0, false
	}
	return v, true
}
