// Package guard flips the runtime into test mode as a side effect of being
// imported, so packages that start servers or workers skip their startup path
// under go test.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AUTHD_TEST_MODE") == "" {
			_ = os.Setenv("AUTHD_TEST_MODE", "1")
		}
	})
}
