package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/labelgw/internal/config"
	"github.com/mattjoyce/labelgw/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://localhost:8000", "labelgw API URL")
	apiKey := fs.String("api-key", os.Getenv(config.EnvAPIKey), "API bearer token (empty when auth is disabled)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func printWatchHelp() {
	fmt.Println("Usage: labelgw watch [flags]")
	fmt.Println()
	fmt.Println("Live view of print jobs from a running labelgw.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    labelgw API URL (default: http://localhost:8000)")
	fmt.Println("  --api-key KEY    API bearer token (or LABELGW_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll jobs")
}
