// Package cli provides the command-line interface for diveroast.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/diveroast/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// apiClient is set for every command that talks to the server.
	apiClient *client.Client
)

// localCommands run without a server.
var localCommands = map[string]bool{
	"analyze": true,
	"version": true,
	"help":    true,
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "diveroast",
	Short: "Dive log analysis with a roasting safety expert",
	Long: `DiveRoast analyses Subsurface dive logs, ranks your most dangerous dives
and lets a witty but accurate DAN safety expert roast them, backed by
DAN incident reports and safety guidelines.

Run 'diveroast analyze <file>' for an offline report, or start
diveroast-server and use upload, dashboard and chat.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if localCommands[cmd.Name()] {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $DIVEROAST_SERVER_URL or "+client.DefaultServerURL+")")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "diveroast %s\n", Version)
	},
}

// isTerminal reports whether f is an interactive terminal.
func isTerminal(f any) bool {
	file, ok := f.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// useColor decides whether to style output written to w.
func useColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isTerminal(w)
}
