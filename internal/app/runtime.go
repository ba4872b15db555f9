package app

import (
	"os"
	"strconv"
)

// TestModeEnv, when truthy, makes both binaries return from main before they
// open listeners, pools or queue clients. Package testing sets it for tests
// that import it.
const TestModeEnv = "ODYSSEY_TEST_MODE"

// InTestMode reports whether TestModeEnv is set to a true value. It reads the
// environment on every call so tests can toggle it with t.Setenv.
func InTestMode() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
}
