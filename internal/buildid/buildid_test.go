package buildid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_UsesDeploymentID(t *testing.T) {
	t.Setenv(EnvVar, "deploy-42")
	assert.Equal(t, "deploy-42", Resolve())
}

func TestResolve_FallsBackToUUID(t *testing.T) {
	getenv := func(string) string { return "  " }

	id := resolve(getenv)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, resolve(getenv), "each fallback id should be fresh")
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"abc-123", true},
		{"a/b", false},
		{"a b", false},
		{uuid.NewString(), true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.id))
		})
	}
}
