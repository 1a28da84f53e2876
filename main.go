package main

import (
	"os"

	"github.com/arm-debug/probeutil/cmd/probeutil"
)

//go:generate go run ./internal/target/gen -out internal/target/zz_generated_targets.go targets

func main() {
	if err := probeutil.Execute(); err != nil {
		os.Exit(1)
	}
}
