// API request/response types for the prismchat HTTP surface
package models

// Response is the common HTTP envelope.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ProviderInfo describes one provider for the settings UI.
type ProviderInfo struct {
	Provider   Provider `json:"provider"`
	Name       string   `json:"name"`
	Model      string   `json:"model"`
	Configured bool     `json:"configured"`
	Active     bool     `json:"active"`
	MaskedKey  string   `json:"masked_key,omitempty"`
}

// SetKeyRequest stores a provider credential.
type SetKeyRequest struct {
	APIKey string `json:"api_key"`
}

// ToggleActiveRequest flips a provider's active flag.
type ToggleActiveRequest struct {
	Active bool `json:"active"`
}

// SubmitPromptRequest fans one prompt out to all active providers.
type SubmitPromptRequest struct {
	Prompt string `json:"prompt"`
}

// SubmitPromptResponse reports which providers were launched.
type SubmitPromptResponse struct {
	SessionID string     `json:"session_id"`
	Launched  []Provider `json:"launched"`
}

// RuntimeInfo tells clients where the backend is reachable.
type RuntimeInfo struct {
	HTTPBaseURL string `json:"http_base_url"`
	WSBaseURL   string `json:"ws_base_url"`
	Port        int    `json:"port"`
}
