package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kuberdock/kuberdock/internal/apierr"
	"github.com/kuberdock/kuberdock/internal/principal"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// v1ErrorEnvelope is the legacy error shape: the message travels in "data".
type v1ErrorEnvelope struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

// v2ErrorEnvelope is the current error shape: the message travels in
// "message", with the error kind also exposed.
type v2ErrorEnvelope struct {
	Status  string `json:"status"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// RespondError writes a plain string error, branching the envelope shape on
// the request's kuberdock-api-version header.
func RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if principal.APIVersionFromContext(r.Context()) == principal.APIVersionV1 {
		Respond(w, status, v1ErrorEnvelope{Status: "error", Data: message})
		return
	}
	Respond(w, status, v2ErrorEnvelope{Status: "error", Message: message})
}

// RespondAPIError unwraps a domain error (an *apierr.Error, or any error
// treated as KindInternalAPIError) and writes it in the versioned envelope.
// Non-admin callers never see the wrapped cause; admins get it appended to
// the message for debugging. The full error, including cause, is always
// logged.
func RespondAPIError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := apierr.Resolve(err)

	if apiErr.Kind == apierr.KindInternalAPIError {
		logger.Error("internal api error",
			"error", apiErr.Cause,
			"path", r.URL.Path,
			"method", r.Method,
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	msg := apiErr.Message
	if p := principal.FromContext(r.Context()); p.IsAdmin && apiErr.Cause != nil {
		msg = apiErr.Error()
	}

	status := apiErr.Status()
	if principal.APIVersionFromContext(r.Context()) == principal.APIVersionV1 {
		Respond(w, status, v1ErrorEnvelope{Status: "error", Data: msg})
		return
	}
	Respond(w, status, v2ErrorEnvelope{Status: "error", Type: string(apiErr.Kind), Message: msg})
}

// v1DataEnvelope wraps successful v1 responses in {"status":"OK","data":...}.
type v1DataEnvelope struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

// RespondOK writes a successful response, wrapping it in the v1 envelope
// when the caller negotiated v1, or returning data unwrapped for v2.
func RespondOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	if principal.APIVersionFromContext(r.Context()) == principal.APIVersionV1 {
		Respond(w, status, v1DataEnvelope{Status: "OK", Data: data})
		return
	}
	Respond(w, status, data)
}
