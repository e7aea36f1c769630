// bhtree builds Barnes-Hut octrees over scattered bodies and records the
// builds.
package main

import (
	"os"

	"github.com/quillaja/bhtree/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Get().Error("command failed", "error", err)
		os.Exit(1)
	}
}
