package embed

import (
	"fmt"
	"os"
	"strings"

	"github.com/codeindex/codeindex/internal/errs"
)

// ProviderType identifies a concrete Embedder implementation.
type ProviderType string

const (
	// ProviderOllama is the local-HTTP backend.
	ProviderOllama ProviderType = "ollama"
	// ProviderRemote is the bearer-token remote-API backend.
	ProviderRemote ProviderType = "remote-api"
	// ProviderStatic is the dependency-free hash-based backend.
	ProviderStatic ProviderType = "static"
)

// String returns the provider's identifier string.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders lists every recognized provider identifier.
func ValidProviders() []string {
	return []string{string(ProviderOllama), string(ProviderRemote), string(ProviderStatic)}
}

// IsValidProvider reports whether s names a recognized provider.
func IsValidProvider(s string) bool {
	_, err := ParseProvider(s)
	return err == nil
}

// ParseProvider resolves a configuration string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ProviderOllama):
		return ProviderOllama, nil
	case string(ProviderRemote), "remote", "api":
		return ProviderRemote, nil
	case string(ProviderStatic):
		return ProviderStatic, nil
	default:
		return "", errs.Validation(fmt.Sprintf("unknown embedding backend %q", s), nil)
	}
}

// NewEmbedder builds (but does not Initialize) the Embedder named by
// provider. model, if non-empty, overrides the provider's default model.
// The remote-api provider additionally reads its endpoint and credential
// from the CODEINDEX_REMOTE_BASE_URL and CODEINDEX_REMOTE_API_KEY
// environment variables, since those have no safe default to put in a
// checked-in configuration file.
func NewEmbedder(provider ProviderType, model string) (Embedder, error) {
	switch provider {
	case ProviderOllama:
		cfg := DefaultOllamaConfig()
		if model != "" {
			cfg.Model = model
		}
		if host := os.Getenv("CODEINDEX_OLLAMA_HOST"); host != "" {
			cfg.Host = host
		}
		return NewOllamaEmbedder(cfg), nil

	case ProviderRemote:
		cfg := DefaultRemoteAPIConfig()
		cfg.Model = model
		cfg.BaseURL = os.Getenv("CODEINDEX_REMOTE_BASE_URL")
		cfg.APIKey = os.Getenv("CODEINDEX_REMOTE_API_KEY")
		if cfg.BaseURL == "" || cfg.APIKey == "" {
			return nil, errs.Config("remote-api backend requires CODEINDEX_REMOTE_BASE_URL and CODEINDEX_REMOTE_API_KEY to be set", nil)
		}
		return NewRemoteAPIEmbedder(cfg), nil

	case ProviderStatic:
		return NewStaticEmbedder(), nil

	default:
		return nil, errs.Validation(fmt.Sprintf("unknown embedding backend %q", provider), nil)
	}
}

// MustNewEmbedder is like NewEmbedder but panics on error; useful in tests
// and other call sites that treat a malformed provider/model as a
// programmer error rather than a runtime condition to handle.
func MustNewEmbedder(provider ProviderType, model string) Embedder {
	e, err := NewEmbedder(provider, model)
	if err != nil {
		panic(err)
	}
	return e
}

// NewDefaultEmbedder builds the local Ollama backend with its default
// configuration. It does not fall back to another backend: an unreachable
// server surfaces as an error from Initialize, and nothing in this module
// substitutes a static embedder in that case.
func NewDefaultEmbedder() Embedder {
	return NewOllamaEmbedder(DefaultOllamaConfig())
}

// Info summarizes a constructed embedder's identity for display/logging.
type Info struct {
	Provider   ProviderType
	Model      string
	Dimensions int
}

// GetInfo extracts display information from an initialized Embedder.
func GetInfo(e Embedder) Info {
	provider, _ := ParseProvider(e.Name())
	return Info{
		Provider:   provider,
		Model:      e.ModelName(),
		Dimensions: e.Dimensions(),
	}
}
