package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
)

// fallbackJSON is sent when a response cannot be encoded.
const fallbackJSON = `{"status":"error","message":"Internal server error"}` + "\n"

// writeJSONResponse encodes v before touching w so an encoding failure can
// still produce a clean 500.
func writeJSONResponse(w http.ResponseWriter, statusCode int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("Server.writeJSONResponse: encode failed", "error", err)
		buf.Reset()
		buf.WriteString(fallbackJSON)
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("Server.writeJSONResponse: write failed", "error", err)
	}
}
