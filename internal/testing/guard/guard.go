package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FLEET_TEST_MODE") == "" {
			_ = os.Setenv("FLEET_TEST_MODE", "1")
		}
	})
}
