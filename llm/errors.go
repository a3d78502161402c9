package llm

import "fmt"

// ConfigError means the selected provider has no usable credential. It is
// raised before any network call and names the provider for the user.
type ConfigError struct {
	Provider Provider
}

func (e *ConfigError) Error() string {
	name := string(e.Provider)
	if display, ok := displayNames[e.Provider]; ok {
		name = display
	}
	return fmt.Sprintf("no API key configured for %s", name)
}

// TransportError means the HTTP call itself failed with a non-2xx status.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
	}
	return fmt.Sprintf("API error (status %d)", e.Status)
}

// ProtocolError means the HTTP call succeeded but the response was missing
// the expected content.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return "no response received: " + e.Reason
	}
	return "no response received"
}
