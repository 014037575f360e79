package core

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fleetcare/internal/recurrence"
	"fleetcare/internal/risk"
	"fleetcare/internal/scheduler"
	"fleetcare/internal/types"
)

const (
	defaultPreviewCount = 5
	maxPreviewCount     = 52
)

// handleRun triggers one maintenance run. The body is an optional
// scheduler.RunPayload.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var payload scheduler.RunPayload
	if err := DecodeJSON(w, r, &payload); err != nil {
		Error(w, r, err)
		return
	}
	now := s.now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	report, err := s.runner.Run(r.Context(), now)
	if err != nil {
		s.Logger.ErrorContext(r.Context(), "triggered run failed", "error", err)
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: report})
}

// handleNotifyCompleted raises the completed event for a closed request.
func (s *Server) handleNotifyCompleted(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.runner.NotifyCompleted(r.Context(), id); err != nil {
		if errors.Is(err, scheduler.ErrNotCompleted) {
			err = types.NewAppError(types.ErrCodeConflictNotCompleted, err.Error(), err)
		}
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRisk scores every active asset without side effects. Results are
// ordered by descending score. ?actionable=true keeps only high and
// critical tiers.
func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	if s.assets == nil {
		http.NotFound(w, r)
		return
	}
	actionable, err := parseBoolQuery(r, "actionable")
	if err != nil {
		Error(w, r, err)
		return
	}

	now := s.now().UTC()
	fleet, err := s.assets.ListActiveAssetsWithTelemetry(r.Context(), s.windowDays, now)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: risk.Rank(fleet, now, actionable)})
}

type rulePreview struct {
	RuleID      string      `json:"rule_id"`
	NextDueDate time.Time   `json:"next_due_date"`
	Following   []time.Time `json:"following"`
}

// handleRuleNext lists the n occurrences that follow a rule's next due date.
func (s *Server) handleRuleNext(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		http.NotFound(w, r)
		return
	}
	n := defaultPreviewCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxPreviewCount {
			Error(w, r, types.NewAppError(types.ErrCodeValidationQuery,
				"n must be an integer between 1 and "+strconv.Itoa(maxPreviewCount), err))
			return
		}
		n = v
	}

	rule, err := s.rules.GetScheduleRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, r, err)
		return
	}
	dates, err := recurrence.Preview(rule.RecurrenceType, rule.Frequency, rule.NextDueDate, n)
	if err != nil {
		Error(w, r, err)
		return
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: rulePreview{
		RuleID:      rule.ID,
		NextDueDate: rule.NextDueDate,
		Following:   dates,
	}})
}

func parseBoolQuery(r *http.Request, key string) (bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeValidationQuery, key+" must be a boolean", err)
	}
	return v, nil
}
