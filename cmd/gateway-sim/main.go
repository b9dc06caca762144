// Command gateway-sim exercises the donation service locally: it sends signed
// Cashfree-style webhooks and stands in for the receipt service.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  gateway-sim send  [flags]   post a signed webhook to the donation service
  gateway-sim serve [flags]   run a mock receipt service`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:], logger)
	case "serve":
		err = runServe(os.Args[2:], logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("gateway-sim failed", "error", err)
		os.Exit(1)
	}
}
