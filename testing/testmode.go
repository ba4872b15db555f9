// Package testing switches the binaries into test mode when imported by a
// test, so their main functions return before touching the network.
package testing

import (
	"os"
	"sync"

	"github.com/odyssey-erp/marketledger/internal/app"
)

var once sync.Once

// Enable sets the test-mode flag unless the environment already chose a value.
func Enable() {
	once.Do(func() {
		if os.Getenv(app.TestModeEnv) == "" {
			_ = os.Setenv(app.TestModeEnv, "1")
		}
	})
}

func init() {
	Enable()
}
