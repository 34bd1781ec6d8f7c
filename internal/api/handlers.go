package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/dispatch"
	"github.com/mattjoyce/barline/internal/signals"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		RunID:         s.info.RunID,
		ConfigHash:    s.info.ConfigHash,
		Version:       s.info.Version,
		Blocks:        s.board.Len(),
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Subscribers()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleListBlocks handles GET /blocks.
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	slots := s.board.Slots()
	out := make([]BlockResponse, 0, len(slots))
	for _, st := range slots {
		out = append(out, toBlockResponse(st))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetBlock handles GET /blocks/{id}.
func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	st, ok := s.slotParam(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toBlockResponse(st))
}

// handleRefresh handles POST /blocks/{id}/refresh. The request is queued
// like any block-initiated update and coalesces with one already pending.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	st, ok := s.slotParam(w, r)
	if !ok {
		return
	}
	if err := s.requests.Request(st.ID); err != nil {
		if errors.Is(err, block.ErrChannelClosed) {
			s.writeError(w, http.StatusServiceUnavailable, "dispatcher is not running")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("refresh requested via API", "block_id", st.ID, "block", st.Name)
	respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "queued", Target: strconv.Itoa(st.ID)})
}

// handleSignal handles POST /signal/{kind}.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	sig, err := signals.Parse(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	select {
	case s.signals <- sig:
	default:
		s.writeError(w, http.StatusServiceUnavailable, "signal queue is full")
		return
	}
	s.logger.Info("signal injected via API", "signal", sig.String())
	respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "queued", Target: sig.String()})
}

func (s *Server) slotParam(w http.ResponseWriter, r *http.Request) (dispatch.SlotStatus, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "block id must be an integer")
		return dispatch.SlotStatus{}, false
	}
	st, ok := s.board.Slot(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "block not found")
		return dispatch.SlotStatus{}, false
	}
	return st, true
}

func toBlockResponse(st dispatch.SlotStatus) BlockResponse {
	resp := BlockResponse{
		ID:        st.ID,
		Name:      st.Name,
		State:     st.State,
		LastError: st.LastError,
		NextDue:   st.NextDue,
		Signal:    st.Signal,
		Runs:      st.Runs,
		Text:      st.Text(),
	}
	if !st.UpdatedAt.IsZero() {
		t := st.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
