package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "zauthd",
		Short: "ZAP authentication daemon",
		Long: `zauthd answers ZAP authentication requests for zsock sockets.

It binds the well-known in-process endpoint (or any tcp/ipc/inproc
endpoint), validates NULL, PLAIN and CURVE handshakes against a
credential store, and optionally exposes an HTTP admin API for
credential management and metrics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		keygenCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
