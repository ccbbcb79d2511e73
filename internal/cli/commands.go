// Package cli implements the chatbridge command line: serving the HTTP API,
// probing the automation driver and querying a running server.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tansive/chatbridge/internal/bridge/server"
)

var (
	// Global flags
	jsonOutput  bool
	configFile  string
	traceRoutes bool
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// rootCmd represents the base command. Without a subcommand it serves the API.
var rootCmd = &cobra.Command{
	Use:   "chatbridge [command] [flags]",
	Short: "Chatbridge - HTTP access to remote WhatsApp Web sessions",
	Long: `Chatbridge exposes browser-driven WhatsApp Web sessions as an HTTP resource.
Clients create a session, scan the returned QR code, poll its status, read chats
and forward a chat transcript to an analysis service.

Examples:
  # Serve with the built-in defaults
  chatbridge

  # Serve with a config file
  chatbridge --config /etc/chatbridge/chatbridge.conf

  # Check that the automation driver is reachable
  chatbridge probe

  # Query a session on a running server
  chatbridge status 0190b6b4-7e41-7c6a-9f0e-2d1c6c1b9a10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "", "", "Path to configuration file, defaults are used when empty")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&traceRoutes, "trace", "", false, "Print the mounted routes at startup")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newProbeCmd())
	rootCmd.AddCommand(newStatusCmd())
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(map[string]string{
				"error": err.Error(),
			})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newVersionCmd creates and returns a new version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chatbridge",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": server.Version,
				})
				return
			}
			cmd.Printf("chatbridge %s\n", server.Version)
		},
	}
}

// printJSON prints the given value as JSON to stdout
func printJSON(data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(jsonData))
}
