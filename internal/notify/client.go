package notify

import (
	"encoding/json"
	"fmt"
)

// Client-to-server message types.
const (
	ClientStartDownload  = "start_download"
	ClientCancelDownload = "cancel_download"
	ClientMessage        = "message"
)

// Request is a decoded client message.
type Request struct {
	Type    string `json:"type"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// DecodeRequest parses one client frame.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("invalid message: %w", err)
	}

	return req, nil
}
