// Package buildid resolves the identifier stamped on a build and its
// manifests. The value is computed once by the caller and passed down
// explicitly.
package buildid

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// EnvVar is the environment variable that pins the build id, typically set
// by the deployment platform
const EnvVar = "DEPLOYMENT_ID"

// Resolve returns the deployment id from the environment, or a random UUID
// when none is set
func Resolve() string {
	return resolve(os.Getenv)
}

func resolve(getenv func(string) string) string {
	if id := strings.TrimSpace(getenv(EnvVar)); id != "" {
		return id
	}
	return uuid.NewString()
}

// Valid reports whether id is usable as a build id: non-empty and without
// path separators or whitespace, since it ends up in object keys
func Valid(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, "/\\ \t\n")
}
