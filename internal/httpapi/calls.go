package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/conversation"
	"github.com/antoniostano/callrelay/internal/registry"
	"github.com/antoniostano/callrelay/internal/twilio"
)

type makeCallRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message,omitempty"`
}

type endCallRequest struct {
	CallSID string `json:"call_sid"`
}

type callActionResponse struct {
	Status  string `json:"status"`
	CallSID string `json:"call_sid,omitempty"`
	Message string `json:"message"`
}

type callView struct {
	*registry.Session
	Phase callflow.Phase `json:"phase"`
}

type callListResponse struct {
	Calls []callView `json:"calls"`
	Count int        `json:"count"`
}

type transcriptResponse struct {
	CallSID    string                         `json:"call_sid"`
	Phase      callflow.Phase                 `json:"phase"`
	Transcript []conversation.TranscriptEntry `json:"transcript"`
}

func (s *Server) handleMakeCall(w http.ResponseWriter, r *http.Request) {
	var req makeCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		respondError(w, http.StatusBadRequest, "missing_phone_number", "phone_number is required")
		return
	}

	callID, err := s.calls.PlaceCall(r.Context(), callflow.OutboundRequest{To: req.PhoneNumber, Greeting: req.Message})
	if err != nil {
		status, code := placeCallErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, callActionResponse{
		Status:  "success",
		CallSID: callID,
		Message: "Call initiated successfully",
	})
}

func placeCallErrorStatus(err error) (int, string) {
	var apiErr *twilio.Error
	switch {
	case errors.Is(err, callflow.ErrInvalidNumber):
		return http.StatusBadRequest, "invalid_phone_number"
	case errors.Is(err, callflow.ErrCallControlUnavailable):
		return http.StatusServiceUnavailable, "call_control_unavailable"
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		return http.StatusBadRequest, "provider_rejected"
	default:
		return http.StatusBadGateway, "provider_error"
	}
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	var req endCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	callID := strings.TrimSpace(req.CallSID)
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "call_sid is required")
		return
	}

	if err := s.calls.EndCall(r.Context(), callID); err != nil {
		status, code := http.StatusBadGateway, "provider_error"
		var apiErr *twilio.Error
		switch {
		case errors.Is(err, callflow.ErrCallControlUnavailable):
			status, code = http.StatusServiceUnavailable, "call_control_unavailable"
		case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
			status, code = http.StatusNotFound, "call_not_found"
		}
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, callActionResponse{
		Status:  "success",
		CallSID: callID,
		Message: "Call ended successfully",
	})
}

var liveStates = []registry.State{
	registry.StateInitiated,
	registry.StateRinging,
	registry.StateInProgress,
}

func (s *Server) handleActiveCalls(w http.ResponseWriter, _ *http.Request) {
	s.respondCalls(w, s.registry.List(liveStates...))
}

// handleIncomingCalls lists live calls placed to the service's number.
func (s *Server) handleIncomingCalls(w http.ResponseWriter, _ *http.Request) {
	s.respondCalls(w, filterDirection(s.registry.List(liveStates...), registry.DirectionInbound))
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var states []registry.State
	for _, raw := range query["state"] {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			st, ok := registry.ParseState(part)
			if !ok {
				respondError(w, http.StatusBadRequest, "invalid_state", "unknown state "+part)
				return
			}
			states = append(states, st)
		}
	}

	sessions := s.registry.List(states...)
	switch direction := registry.Direction(strings.ToLower(strings.TrimSpace(query.Get("direction")))); direction {
	case "":
	case registry.DirectionInbound, registry.DirectionOutbound:
		sessions = filterDirection(sessions, direction)
	default:
		respondError(w, http.StatusBadRequest, "invalid_direction", "direction must be inbound or outbound")
		return
	}
	s.respondCalls(w, sessions)
}

func filterDirection(sessions []*registry.Session, direction registry.Direction) []*registry.Session {
	out := sessions[:0]
	for _, sess := range sessions {
		if sess.Direction == direction {
			out = append(out, sess)
		}
	}
	return out
}

func (s *Server) respondCalls(w http.ResponseWriter, sessions []*registry.Session) {
	out := callListResponse{Calls: make([]callView, 0, len(sessions))}
	for _, sess := range sessions {
		out.Calls = append(out.Calls, callView{Session: sess, Phase: s.calls.Phase(sess.CallID)})
	}
	out.Count = len(out.Calls)
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCallTranscript(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_sid"))
	if callID == "" {
		respondError(w, http.StatusBadRequest, "missing_call_sid", "query parameter call_sid is required")
		return
	}
	entries, err := s.calls.Transcript(callID)
	if err != nil {
		respondError(w, http.StatusNotFound, "transcript_not_found", err.Error())
		return
	}
	if entries == nil {
		entries = []conversation.TranscriptEntry{}
	}
	respondJSON(w, http.StatusOK, transcriptResponse{
		CallSID:    callID,
		Phase:      s.calls.Phase(callID),
		Transcript: entries,
	})
}
