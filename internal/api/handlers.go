// Package api exposes the HTTP surface of the points agent.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/points/internal/auth"
	"example.com/points/internal/domain"
	"example.com/points/internal/ledger"
	"example.com/points/internal/observability"
	"example.com/points/internal/persistence"
)

// Handler coordinates HTTP requests with the session manager.
type Handler struct {
	manager *ledger.Manager
}

// NewHandler builds a Handler.
func NewHandler(manager *ledger.Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/session", h.session)
	mux.HandleFunc("/v1/points/activities", h.activities)
	mux.HandleFunc("/v1/points/summary", h.summary)
	mux.HandleFunc("/v1/points/history", h.history)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// session handles sign-in (POST) and sign-out (DELETE). The identity is the
// token subject; the manager tears down the previous session and bootstraps
// the new one (cache load, remote merge, initial push).
func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodPost:
		if !claims.HasScope(auth.ScopePointsWrite) {
			writeError(w, http.StatusForbidden, "forbidden", "scope points:write required")
			return
		}
		sess := h.manager.SignIn(r.Context(), claims.Subject)
		writeJSON(w, http.StatusOK, toSummaryView(sess.Identity(), sess.Snapshot()))
	case http.MethodDelete:
		if !claims.HasScope(auth.ScopePointsWrite) {
			writeError(w, http.StatusForbidden, "forbidden", "scope points:write required")
			return
		}
		h.manager.SignOut(r.Context())
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePointsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope points:write required")
		return
	}

	var req RecordActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	sess := h.manager.Current()
	activity, err := sess.Record(r.Context(), domain.Kind(req.Kind), req.Description, req.SubjectRef)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyCheckedIn):
			observability.RecordCheckinRejected()
			writeError(w, http.StatusConflict, "already_checked_in", err.Error())
		case errors.Is(err, domain.ErrUnknownKind):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	snap := sess.Snapshot()
	writeJSON(w, http.StatusAccepted, RecordActivityResponse{
		Activity:          toActivityView(activity),
		TotalPoints:       snap.TotalPoints,
		Level:             snap.Level,
		PointsToNextLevel: snap.PointsToNextLevel,
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePointsRead) && !claims.HasScope(auth.ScopePointsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope points:read required")
		return
	}

	sess := h.manager.Current()
	writeJSON(w, http.StatusOK, toSummaryView(sess.Identity(), sess.Snapshot()))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopePointsRead) && !claims.HasScope(auth.ScopePointsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope points:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	history := h.manager.Current().Ledger().History()
	page, next := paginate(history, cursor, limit)

	items := make([]ActivityView, 0, len(page))
	for _, a := range page {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

// paginate slices the newest-first history below the cursor position.
func paginate(history []domain.Activity, cursor *persistence.Cursor, limit int) ([]domain.Activity, *persistence.Cursor) {
	start := 0
	if cursor != nil {
		start = len(history)
		for i, a := range history {
			if a.OccurredAt.Before(cursor.OccurredAt) ||
				(a.OccurredAt.Equal(cursor.OccurredAt) && a.ID < cursor.ID) {
				start = i
				break
			}
		}
	}

	end := start + limit
	if end > len(history) {
		end = len(history)
	}
	page := history[start:end]

	var next *persistence.Cursor
	if end < len(history) && len(page) > 0 {
		last := page[len(page)-1]
		next = &persistence.Cursor{OccurredAt: last.OccurredAt, ID: last.ID}
	}
	return page, next
}

// RecordActivityRequest is the payload for POST /v1/points/activities.
type RecordActivityRequest struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	SubjectRef  string `json:"subject_ref,omitempty"`
}

// Validate ensures request correctness. Points are never part of the
// request; the rules table owns them.
func (r RecordActivityRequest) Validate() error {
	if strings.TrimSpace(r.Kind) == "" {
		return errors.New("kind is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return errors.New("description is required")
	}
	return nil
}

// ActivityView exposes one recorded activity.
type ActivityView struct {
	ActivityID  string    `json:"activity_id"`
	Kind        string    `json:"kind"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
	SubjectRef  string    `json:"subject_ref,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RecordActivityResponse is returned for an accepted activity.
type RecordActivityResponse struct {
	Activity          ActivityView `json:"activity"`
	TotalPoints       int          `json:"total_points"`
	Level             int          `json:"level"`
	PointsToNextLevel int          `json:"points_to_next_level"`
}

// SummaryView carries the derived ledger state.
type SummaryView struct {
	Identity          string `json:"identity,omitempty"`
	TotalPoints       int    `json:"total_points"`
	Level             int    `json:"level"`
	PointsToNextLevel int    `json:"points_to_next_level"`
	ActivityCount     int    `json:"activity_count"`
}

// HistoryResponse packages a history page.
type HistoryResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:  a.ID,
		Kind:        string(a.Kind),
		Points:      a.Points,
		Description: a.Description,
		SubjectRef:  a.SubjectRef,
		OccurredAt:  a.OccurredAt,
	}
}

func toSummaryView(identity string, snap ledger.Snapshot) SummaryView {
	return SummaryView{
		Identity:          identity,
		TotalPoints:       snap.TotalPoints,
		Level:             snap.Level,
		PointsToNextLevel: snap.PointsToNextLevel,
		ActivityCount:     len(snap.Activities),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
