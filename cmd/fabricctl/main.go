// Command fabricctl runs the pieces of the agent fabric: the control
// plane (heartbeat monitor, intelligence hub, orchestrator), the
// WebSocket gateway, and individual agent runtime instances.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fabricctl",
	Short: "Run pieces of the multi-agent debate fabric",
	Long: `fabricctl starts the processes that make up the fabric: the
control plane (coordinator + heartbeat monitor + intelligence hub), the
WebSocket gateway clients connect to, and individual agent runtimes.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error); defaults to LOG_LEVEL/config")
	rootCmd.AddCommand(brokerCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(agentCmd)
}
