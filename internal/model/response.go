package model

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ChallengeResponse carries a freshly issued proof challenge.
type ChallengeResponse struct {
	Payload string `json:"payload"`
}

// TokenResponse is returned after a successful proof login.
type TokenResponse struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	ExpiresAt int64  `json:"expires_at"`
}

// APIKeyResponse is returned when a new API key is issued. The raw key is
// shown exactly once.
type APIKeyResponse struct {
	Key       string `json:"key"`
	Address   string `json:"address"`
	ExpiresAt int64  `json:"expires_at"`
}

// ListenResponse reports the updated per-user play count after a recorded
// listen.
type ListenResponse struct {
	NFTAddress  string `json:"nft_address"`
	ListenCount int64  `json:"listen_count"`
}
