package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/antoniostano/callrelay/internal/callflow"
	"github.com/antoniostano/callrelay/internal/directive"
	"github.com/antoniostano/callrelay/internal/policy"
	"github.com/antoniostano/callrelay/internal/twilio"
)

// handleVoiceWebhook answers the first request Twilio makes for a call.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := twilio.ParseCallStarted(r)
	if err != nil {
		s.rejectWebhook(w, "voice", err)
		return
	}
	doc := s.calls.StartCall(r.Context(), ev)
	s.writeDocument(w, "voice", ev.CallID, doc)
}

func (s *Server) handleSpeechWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := twilio.ParseSpeechResult(r)
	if err != nil {
		s.rejectWebhook(w, "speech", err)
		return
	}
	doc := s.calls.HandleSpeech(r.Context(), ev)
	s.writeDocument(w, "speech", ev.CallID, doc)
}

// handleStatusWebhook acknowledges every status callback that names a call,
// including ones the registry ignores, so Twilio does not retry them.
func (s *Server) handleStatusWebhook(w http.ResponseWriter, r *http.Request) {
	ev, err := twilio.ParseStatusCallback(r)
	if errors.Is(err, twilio.ErrMissingCallSid) {
		s.rejectWebhook(w, "status", err)
		return
	}
	if err != nil {
		s.logger.Warn("unusable status callback", slog.Any("error", err))
		s.countWebhook("status", "ignored")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.calls.HandleStatus(ev); err != nil {
		s.logger.Warn("status callback failed", slog.String("call_id", ev.CallID), slog.Any("error", err))
		s.countWebhook("status", "error")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.countWebhook("status", "ok")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordingWebhook(w http.ResponseWriter, r *http.Request) {
	rec, err := twilio.ParseRecording(r)
	if err != nil {
		s.rejectWebhook(w, "recording", err)
		return
	}
	s.logger.Info("call recording completed",
		slog.String("call_id", rec.CallID),
		slog.String("recording_sid", rec.RecordingSID),
		slog.String("recording_url", policy.Redact(rec.RecordingURL)),
		slog.Duration("duration", rec.Duration),
	)
	s.countWebhook("recording", "ok")
	writeTwiML(w, twilio.EmptyResponse())
}

// writeDocument renders doc, falling back to an apology and hangup so the
// provider always receives a playable response.
func (s *Server) writeDocument(w http.ResponseWriter, endpoint, callID string, doc directive.Document) {
	body, err := twilio.Render(doc)
	if err != nil {
		s.logger.Error("render twiml failed", slog.String("call_id", callID), slog.Any("error", err))
		s.countWebhook(endpoint, "render_error")
		body, err = twilio.Render(directive.Farewell(s.cfg.VoiceName, callflow.DefaultApology))
		if err != nil {
			body = twilio.EmptyResponse()
		}
		writeTwiML(w, body)
		return
	}
	s.countWebhook(endpoint, "ok")
	writeTwiML(w, body)
}

func (s *Server) rejectWebhook(w http.ResponseWriter, endpoint string, err error) {
	s.logger.Warn("rejected webhook", slog.String("endpoint", endpoint), slog.Any("error", err))
	s.countWebhook(endpoint, "bad_request")
	respondError(w, http.StatusBadRequest, "invalid_webhook", err.Error())
}

func (s *Server) countWebhook(endpoint, result string) {
	if s.metrics != nil {
		s.metrics.WebhookRequests.WithLabelValues(endpoint, result).Inc()
	}
}

func writeTwiML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", twilio.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
