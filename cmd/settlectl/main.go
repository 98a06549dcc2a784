// settlectl submits documents to a settle server and follows the review.
//
// Usage:
//
//	settlectl run invoice.txt po.txt receipt.txt
//	settlectl agents
//	settlectl runs
//	settlectl events <run-id>
//	settlectl cancel <run-id>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	server string
	apiKey string
}

func (o *rootOptions) client() *apiClient {
	return newAPIClient(o.server, o.apiKey)
}

// newRootCmd builds the command tree. pollInterval paces the run status checks
// made while following a run.
func newRootCmd(pollInterval time.Duration) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Run multi-agent reviews of procure-to-pay documents",
		Long:          "settlectl uploads documents to a settle server, follows the agents as they\nstream their findings, and prints the final verdict.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.server, "server", getEnv("SETTLE_SERVER", "http://localhost:8080"), "Server base URL")
	f.StringVar(&opts.apiKey, "api-key", os.Getenv("SETTLE_API_KEY"), "Model API key passed through to the server")

	cmd.AddCommand(newRunCmd(opts, pollInterval))
	cmd.AddCommand(newAgentsCmd(opts))
	cmd.AddCommand(newRunsCmd(opts))
	cmd.AddCommand(newEventsCmd(opts))
	cmd.AddCommand(newCancelCmd(opts))
	return cmd
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(time.Second).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
