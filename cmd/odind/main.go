// Command odind runs the ODIN actor runtime and SPA Server as a single
// process, adapted from the teacher's services/conn_rpc/main.go wiring, with
// spf13/cobra fronting the entry point the way cmd/substrate does in the
// retrieval pack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "odind",
	Short: "ODIN actor runtime and SPA Server",
	Long:  `odind runs the ODIN distributed real-time situational-awareness runtime: an actor system plus the SPA Server that exposes it to browser clients over HTTP/WebSocket.`,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: search ., ./configs and /etc/odin for config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
