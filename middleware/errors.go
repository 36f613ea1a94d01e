package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/sessionauth"
)

// ErrorBody is the JSON body written for every failed request.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

var errMissingBearer = errors.New("missing bearer token")

// WriteError writes err with the status from [sessionauth.HTTPStatus].
// Internal failures never expose the underlying error text.
func WriteError(w http.ResponseWriter, err error) {
	kind := sessionauth.ErrorKind(err)
	status := sessionauth.HTTPStatus(err)

	msg := "internal server error"
	switch kind {
	case sessionauth.KindInvalidCredentials:
		if errors.Is(err, sessionauth.ErrInvalidCredentials) {
			msg = sessionauth.ErrInvalidCredentials.Error()
		} else {
			msg = "unauthorized"
		}
	case sessionauth.KindTokenNotActive:
		msg = sessionauth.ErrTokenNotActive.Error()
	case sessionauth.KindRateLimited:
		msg = "too many login attempts"
	case sessionauth.KindInvalidArgument:
		msg = err.Error()
	}

	WriteJSON(w, status, ErrorBody{
		Error:     kind,
		Message:   msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteJSON encodes body as the response with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
