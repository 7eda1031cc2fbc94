package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"ollama", ProviderOllama, false},
		{"OLLAMA", ProviderOllama, false},
		{" static ", ProviderStatic, false},
		{"remote-api", ProviderRemote, false},
		{"remote", ProviderRemote, false},
		{"api", ProviderRemote, false},
		{"mystery", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProvider(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestIsValidProvider(t *testing.T) {
	for _, name := range ValidProviders() {
		assert.True(t, IsValidProvider(name))
	}
	assert.False(t, IsValidProvider("mystery"))
}

func TestNewEmbedder_Static(t *testing.T) {
	e, err := NewEmbedder(ProviderStatic, "")
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "static", e.Name())
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNewEmbedder_OllamaModelOverride(t *testing.T) {
	e, err := NewEmbedder(ProviderOllama, "custom-model")
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "ollama", e.Name())
	assert.Equal(t, "custom-model", e.ModelName())
}

func TestNewEmbedder_RemoteRequiresEnvironment(t *testing.T) {
	t.Setenv("CODEINDEX_REMOTE_BASE_URL", "")
	t.Setenv("CODEINDEX_REMOTE_API_KEY", "")

	_, err := NewEmbedder(ProviderRemote, "embed-small")
	assert.Error(t, err)
}

func TestNewEmbedder_RemoteFromEnvironment(t *testing.T) {
	t.Setenv("CODEINDEX_REMOTE_BASE_URL", "https://embeddings.example.com/v1")
	t.Setenv("CODEINDEX_REMOTE_API_KEY", "sekrit")

	e, err := NewEmbedder(ProviderRemote, "embed-small")
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "remote-api", e.Name())
	assert.Equal(t, "embed-small", e.ModelName())
}
