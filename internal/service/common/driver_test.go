//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestDetectDriver ensures the id carries both user and host.
func TestDetectDriver(t *testing.T) {
	t.Parallel()

	driver, err := DetectDriver()
	require.NoError(t, err)

	user, host, ok := strings.Cut(driver, "@")
	require.True(t, ok)
	require.NotEmpty(t, user)
	require.NotEmpty(t, host)
}
