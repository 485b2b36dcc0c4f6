package webchat

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/estatebot/pkg/assistant"
	"github.com/go-go-golems/estatebot/pkg/persistence/chatstore"
	"github.com/go-go-golems/estatebot/pkg/persistence/client"
)

const maxBodyBytes = 1 << 20

// RequestResolutionError carries the status and message a handler should
// answer with.
type RequestResolutionError struct {
	Status    int
	ClientMsg string
	Err       error
}

func (e *RequestResolutionError) Error() string {
	if e.Err != nil {
		return e.ClientMsg + ": " + e.Err.Error()
	}
	return e.ClientMsg
}

func (e *RequestResolutionError) Unwrap() error { return e.Err }

func badRequest(msg string, err error) error {
	return &RequestResolutionError{Status: http.StatusBadRequest, ClientMsg: msg, Err: err}
}

// statusFor maps the domain error types onto HTTP answers.
func statusFor(err error) (int, string) {
	var rre *RequestResolutionError
	if stderrors.As(err, &rre) && rre != nil {
		status := rre.Status
		if status <= 0 {
			status = http.StatusInternalServerError
		}
		msg := strings.TrimSpace(rre.ClientMsg)
		if msg == "" {
			msg = http.StatusText(status)
		}
		return status, msg
	}
	var ve *assistant.ValidationError
	if stderrors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}
	var pe *assistant.PhaseError
	if stderrors.As(err, &pe) {
		return http.StatusConflict, pe.Error()
	}
	if stderrors.Is(err, chatstore.ErrConversationNotFound) {
		return http.StatusNotFound, "conversation not found"
	}
	if client.IsConfigurationError(err) {
		return http.StatusServiceUnavailable, "persistence is not configured"
	}
	if client.IsTransportError(err) {
		return http.StatusBadGateway, "persistence unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	ev := log.Debug()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("component", "webchat").Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "webchat").Msg("response write failed")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body", errors.Wrap(err, "decode body"))
	}
	return nil
}
