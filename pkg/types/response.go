package types

// SuccessEnvelope wraps versioned API payloads.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the error shape shared by every route.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
