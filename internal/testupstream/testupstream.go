// Package testupstream gives tests access to a real messaging backend.
package testupstream

import (
	"os"
	"testing"
)

// Get gets the upstream base URL, or skips the test if no upstream is
// available, *unless* NO_TEST_SKIP is set, in which case this is considered
// a fatal error.
func Get(t *testing.T) string {
	t.Helper()
	upstream := os.Getenv("SIGNAL_WEB_UPSTREAM")
	if upstream == "" {
		if os.Getenv("NO_TEST_SKIP") == "" {
			t.Skip("Set SIGNAL_WEB_UPSTREAM to run tests against a real backend")
		} else {
			t.Fatal("SIGNAL_WEB_UPSTREAM must be set when NO_TEST_SKIP is set")
		}
	}
	return upstream
}
