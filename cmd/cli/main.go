package main

import (
	"os"

	_ "github.com/keshon/chatkernel/internal/plugins/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
