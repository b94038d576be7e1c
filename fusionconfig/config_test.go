package fusionconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, validate(&cfg))
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageBackend = "sqlite"

	err := validate(&cfg)
	require.Error(t, err)
}

func TestValidateRequiresPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageBackend = "postgres"

	err := validate(&cfg)
	require.Error(t, err)

	cfg.PostgresDSN = "postgres://localhost/swapd"
	require.NoError(t, validate(&cfg))
}
