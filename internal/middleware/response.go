package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody повторяет конверт ответов API для ошибок, возникающих до обработчика.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Success: false,
		Message: message,
		Error:   http.StatusText(status),
	})
}
