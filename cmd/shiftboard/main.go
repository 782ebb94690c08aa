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

const banner = `
  ┌─┐┬ ┬┬┌─┐┌┬┐┌┐ ┌─┐┌─┐┬─┐┌┬┐
  └─┐├─┤│├┤  │ ├┴┐│ │├─┤├┬┘ ││
  └─┘┴ ┴┴└   ┴ └─┘└─┘┴ ┴┴└──┴┘
`

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "shiftboard",
		Short: "Shift-scheduling analytics dashboard server",
		Long: `Shiftboard serves precomputed shift-scheduling analysis artifacts as a
multi-tenant dashboard API.

Clients upload a ZIP of analysis outputs (heatmaps, shortage tables,
fairness metrics) and get an isolated session whose datasets are loaded
lazily and cached with bounded memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		checkCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
