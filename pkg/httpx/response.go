package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/baechuer/tour-booking/pkg/appctx"
)

// Handlers answer with exactly one of two bodies:
//
//	{"data": <payload>}
//	{"error": {"code": "<entity>.<reason>", "message": "...", "meta": {...}, "request_id": "..."}}
//
// Clients branch on code; message is for humans and meta carries per-field
// validation failures.

type dataBody struct {
	Data any `json:"data,omitempty"`
}

type ErrorBody struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Meta      map[string]string `json:"meta,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

const noRequestID = "no-request-id"

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func Data(w http.ResponseWriter, status int, payload any) {
	write(w, status, dataBody{Data: payload})
}

// Fail writes the error body, tagged with the request id RequestID stored.
func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	rid := appctx.GetRequestID(r.Context())
	if rid == "" {
		rid = noRequestID
	}
	write(w, status, ErrorBody{Error: APIError{
		Code:      code,
		Message:   message,
		Meta:      meta,
		RequestID: rid,
	}})
}
