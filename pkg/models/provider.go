// Provider enumeration - the closed set of LLM back-ends prismchat can reach
package models

import "fmt"

// Provider identifies one hosted LLM streaming-completion service.
// The set is closed: adding a provider means adding a constant here plus a
// chat-model construction arm in the model service.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderGroq      Provider = "groq"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderAnthropic Provider = "anthropic"
)

// AllProviders lists every known provider in display order.
var AllProviders = []Provider{
	ProviderOpenAI,
	ProviderGemini,
	ProviderGroq,
	ProviderDeepSeek,
	ProviderAnthropic,
}

// ParseProvider validates a provider identifier coming from the API surface.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderOpenAI, ProviderGemini, ProviderGroq, ProviderDeepSeek, ProviderAnthropic:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown provider: %s", s)
}

// DisplayName returns the human-readable provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderGemini:
		return "Gemini"
	case ProviderGroq:
		return "Groq"
	case ProviderDeepSeek:
		return "DeepSeek"
	case ProviderAnthropic:
		return "Anthropic"
	}
	return string(p)
}

// ModelID returns the fixed model identifier requested from this provider.
func (p Provider) ModelID() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-2.5-flash"
	case ProviderGroq:
		return "meta-llama/llama-4-scout-17b-16e-instruct"
	case ProviderDeepSeek:
		return "deepseek-chat"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	}
	return ""
}

// ActiveSet maps each provider to whether it participates in the fan-out.
type ActiveSet map[Provider]bool

// Clone returns an independent copy with an entry for every known provider.
func (a ActiveSet) Clone() ActiveSet {
	out := make(ActiveSet, len(AllProviders))
	for _, p := range AllProviders {
		out[p] = a[p]
	}
	return out
}
