package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/touchsync/touchsync/internal/domain"
)

// ─── Engagement API (/api/engagement/*) ─────────────────────────────────────
// Every handler acts on the authenticated caller's profile.

type awardRequest struct {
	Action string `json:"action" validate:"required"`
	Amount int64  `json:"amount" validate:"gte=0"`
}

type streakCheckRequest struct {
	PerfectDay *bool `json:"perfect_day" validate:"required"`
}

type qualityRequest struct {
	Seconds int `json:"seconds" validate:"min=1"`
}

// --- /level ---

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Level(r.Context(), ProfileID(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- /xp ---

func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	action, err := domain.ParseXPAction(req.Action)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.manager.AwardXP(r.Context(), ProfileID(r.Context()), action, req.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- /streak ---

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Streak(r.Context(), ProfileID(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleStreakCheck(w http.ResponseWriter, r *http.Request) {
	var req streakCheckRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := s.manager.CheckDailyStreak(r.Context(), ProfileID(r.Context()), *req.PerfectDay)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- /goals ---

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Goals(r.Context(), ProfileID(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGoalTouch(w http.ResponseWriter, r *http.Request) {
	upd, err := s.manager.RecordTouchSent(r.Context(), ProfileID(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func (s *Server) handleGoalResponse(w http.ResponseWriter, r *http.Request) {
	upd, err := s.manager.RecordResponse(r.Context(), ProfileID(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func (s *Server) handleGoalQuality(w http.ResponseWriter, r *http.Request) {
	var req qualityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	upd, err := s.manager.RecordQualityTouch(r.Context(), ProfileID(r.Context()), req.Seconds)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

// --- /summary ---

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	v, err := s.manager.Summary(r.Context(), ProfileID(r.Context()))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- /notifications ---

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	notifs, err := s.manager.Notifications(r.Context(), ProfileID(r.Context()), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": notifs,
	})
}

func (s *Server) handleNotificationShown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.MarkNotificationShown(r.Context(), ProfileID(r.Context()), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
