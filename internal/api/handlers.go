package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BTreeMap/NamePlay/internal/flow"
	"github.com/BTreeMap/NamePlay/internal/leaderboard"
	"github.com/BTreeMap/NamePlay/internal/models"
	"github.com/BTreeMap/NamePlay/internal/share"
)

var errSessionNotFound = errors.New("session not found")

// sessionView is the polled representation of a session.
type sessionView struct {
	flow.Snapshot
	ShareText    string `json:"share_text,omitempty"`
	ShareEnabled bool   `json:"share_enabled"`
}

// rankingRow is one leaderboard line with its global rank.
type rankingRow struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type leaderboardView struct {
	Rows          []rankingRow `json:"rows"`
	PageIndex     int          `json:"page_index"`
	TotalPages    int          `json:"total_pages"`
	PageSize      int          `json:"page_size"`
	TotalElements int          `json:"total_elements"`
	HasNext       bool         `json:"has_next"`
	HasPrev       bool         `json:"has_prev"`
}

func newLeaderboardView(p models.Page[models.NameCount]) leaderboardView {
	rows := make([]rankingRow, len(p.Items))
	for i, item := range p.Items {
		rows[i] = rankingRow{Rank: p.Rank(i), Name: item.Name, Count: item.Count}
	}
	return leaderboardView{
		Rows:          rows,
		PageIndex:     p.PageIndex,
		TotalPages:    p.TotalPages,
		PageSize:      p.PageSize,
		TotalElements: p.TotalElements,
		HasNext:       p.HasNext(),
		HasPrev:       p.HasPrev(),
	}
}

func (s *Server) view(cs *clientSession) sessionView {
	snap := cs.dialogue.Snapshot()
	v := sessionView{Snapshot: snap, ShareEnabled: s.sharer.Enabled()}
	if snap.Result != nil {
		v.ShareText = share.Text(snap.Result.TopName())
	}
	return v
}

// session resolves the {id} path value or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*clientSession, bool) {
	id := r.PathValue("id")
	cs, ok := s.lookup(id)
	if !ok {
		slog.Debug("Server.session: unknown session", "id", id, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusNotFound, models.Error(errSessionNotFound.Error()))
		return nil, false
	}
	return cs, true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]int{"sessions": s.SessionCount()}))
}

// createSessionHandler handles POST /sessions
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	cs := s.createSession()
	slog.Info("Server.createSessionHandler: session created", "id", cs.dialogue.ID())
	writeJSONResponse(w, http.StatusCreated, models.Success(s.view(cs)))
}

// getSessionHandler handles GET /sessions/{id}
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.view(cs)))
}

// deleteSessionHandler handles DELETE /sessions/{id}
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.removeSession(id) {
		writeJSONResponse(w, http.StatusNotFound, models.Error(errSessionNotFound.Error()))
		return
	}
	slog.Info("Server.deleteSessionHandler: session discarded", "id", id)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session discarded", nil))
}

// formHandler handles POST /sessions/{id}/form
func (s *Server) formHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}
	var req models.FormRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.formHandler: validation failed", "error", err)
		writeError(w, err)
		return
	}
	if err := cs.dialogue.SubmitForm(req.Age, req.Gender); err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.view(cs)))
}

// messageHandler handles POST /sessions/{id}/messages
func (s *Server) messageHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}
	var req models.MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := cs.dialogue.Submit(req.Input); err != nil {
		slog.Debug("Server.messageHandler: input rejected", "id", cs.dialogue.ID(), "error", err)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.view(cs)))
}

// resetHandler handles POST /sessions/{id}/reset
func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}
	cs.dialogue.Reset()
	writeJSONResponse(w, http.StatusOK, models.Success(s.view(cs)))
}

// feedbackHandler handles POST /sessions/{id}/feedback
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}
	var req models.FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	rating, _ := models.ParseRating(req.Rating)
	ack, err := cs.dialogue.Rate(rating)
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.feedback.WithLabelValues(string(rating)).Inc()
	writeJSONResponse(w, http.StatusOK, models.RecordedWithMessage(ack))
}

// shareHandler handles POST /sessions/{id}/share
func (s *Server) shareHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}
	if !s.sharer.Enabled() {
		writeError(w, share.ErrNotConfigured)
		return
	}
	var req models.ShareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, err)
		return
	}
	snap := cs.dialogue.Snapshot()
	if snap.State != models.StateResult || snap.Result == nil {
		writeError(w, flow.ErrNotInResult)
		return
	}

	receipt, err := s.sharer.Share(r.Context(), snap.ID, req.To, snap.Result.TopName())
	if receipt.Status != "" {
		s.metrics.shares.WithLabelValues(string(receipt.Status)).Inc()
	}
	if err != nil {
		if receipt.Status == models.ShareStatusFailed {
			writeJSONResponse(w, http.StatusBadGateway, models.Error(err.Error()))
			return
		}
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Shared", receipt))
}

// leaderboardHandler handles GET /sessions/{id}/leaderboard?page=n
func (s *Server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	cs, ok := s.session(w, r)
	if !ok {
		return
	}

	page := cs.board.Current().PageIndex
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, models.ErrInvalidPageNumber)
			return
		}
		page = n
	}

	p, err := cs.board.Load(r.Context(), page)
	s.metrics.leaderboard.WithLabelValues(loadOutcome(err)).Inc()
	if err != nil {
		slog.Debug("Server.leaderboardHandler: load failed", "id", cs.dialogue.ID(), "page", page, "error", err)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(newLeaderboardView(p)))
}

func loadOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, leaderboard.ErrPageOutOfRange):
		return "out_of_range"
	default:
		return "error"
	}
}
