package main

// FrameRequest is a message received on the live endpoint.
type FrameRequest struct {
	Type          string   `json:"type,omitempty"`
	Frame         string   `json:"frame,omitempty"`
	ClassesNoBlur []string `json:"classes_no_blur,omitempty"`
}

// Reply is a message sent on the live endpoint. Exactly one field is set.
type Reply struct {
	Type  string `json:"type,omitempty"`  // heartbeat
	Frame string `json:"frame,omitempty"` // processed frame
	Error string `json:"error,omitempty"`
}

// Error texts sent to clients.
const (
	errInvalidJSON    = "Invalid JSON data"
	errMissingFields  = "Missing frame or classes_no_blur"
	errInvalidBase64  = "Invalid base64 frame data"
	errInvalidFrame   = "Invalid frame data"
	errEncodeFailed   = "Failed to encode frame"
	closeReasonServer = "server shutting down"
)
