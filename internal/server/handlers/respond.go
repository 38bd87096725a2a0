package handlers

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponder renders an error for a request. The server package
// injects the centralized responder to avoid a circular import.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var respondError HTTPErrorResponder = func(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

// SetHTTPErrorResponder installs the centralized error responder.
func SetHTTPErrorResponder(responder HTTPErrorResponder) {
	if responder != nil {
		respondError = responder
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
