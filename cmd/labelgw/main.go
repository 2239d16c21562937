package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/labelgw/internal/config"
	"github.com/mattjoyce/labelgw/internal/driver"
	"github.com/mattjoyce/labelgw/internal/executor"
	"github.com/mattjoyce/labelgw/internal/log"
)

var (
	version   = "2.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "config":
		return runConfigNoun(args)
	case "job":
		return runJobNoun(args)

	// --- VERBS ---
	case "serve", "start":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "print":
		if hasHelpFlag(args) {
			printPrintHelp()
			return 0
		}
		return runPrint(args)
	case "labels":
		return runLabels(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "doctor":
		return runConfigCheck(append([]string{"--strict"}, args...))
	case "worker":
		return runWorker(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: labelgw version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("labelgw %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`labelgw - HTTP gateway for Brother QL label printers

Usage:
  labelgw <command> [flags]
  labelgw <noun> <action> [flags]

Service:
  serve             Start the HTTP print service in foreground
  worker            Run one isolated print job (spawned by serve)
  watch             Live print monitor TUI

Printing:
  print <file.png>  Print (or save, in dry-run mode) a pre-rendered label
  labels            List supported label sizes

Config Commands:
  config check      Validate configuration and show its fingerprint
                    (--strict also probes directories, driver and journal)
  doctor            Alias for config check --strict
  config show       Print the effective configuration as YAML

Job Commands:
  job list          Show recent print jobs from the journal
  job inspect <id>  Show one print job

General:
  --version         Show version information
  version           Show version information
  help              Show this help message
`)
}

func printServeHelp() {
	fmt.Println("Usage: labelgw serve [--config PATH]")
	fmt.Println("Start the HTTP print service. Environment overrides such as DRY_RUN and BROTHER_QL_PRINTER are applied after the file.")
}

func printPrintHelp() {
	fmt.Println("Usage: labelgw print --label ID [--config PATH] [--json] <file.png>")
	fmt.Println("Print a pre-rendered PNG through the same pipeline as POST /print.")
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// runWorker is the isolated print process. It reads one request on stdin and
// answers on stdout, so logs go to stderr.
func runWorker(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "Usage: labelgw worker < request.json")
		return 1
	}
	level := os.Getenv(config.EnvLogLevel)
	if level == "" {
		level = "info"
	}
	log.SetupWriter(os.Stderr, level, "json")
	return executor.RunWorker(os.Stdin, os.Stdout, driver.New)
}

func runLabels(args []string) int {
	fs := flag.NewFlagSet("labels", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output the label catalogue as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	labels := driver.Labels()
	if *jsonOut {
		type entry struct {
			Identifier    string `json:"identifier"`
			TapeSize      [2]int `json:"tape_size_mm"`
			DotsPrintable [2]int `json:"dots_printable"`
			FormFactor    string `json:"form_factor"`
		}
		out := make([]entry, 0, len(labels))
		for _, l := range labels {
			out = append(out, entry{l.Identifier, l.TapeSize, l.DotsPrintable, l.Form.String()})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render labels: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("%-8s %-12s %-14s %s\n", "ID", "TAPE (mm)", "PRINTABLE", "FORM")
	for _, l := range labels {
		tape := fmt.Sprintf("%d", l.TapeSize[0])
		if l.TapeSize[1] > 0 {
			tape = fmt.Sprintf("%dx%d", l.TapeSize[0], l.TapeSize[1])
		}
		printable := fmt.Sprintf("%d", l.DotsPrintable[0])
		if l.DotsPrintable[1] > 0 {
			printable = fmt.Sprintf("%dx%d", l.DotsPrintable[0], l.DotsPrintable[1])
		}
		fmt.Printf("%-8s %-12s %-14s %s\n", l.Identifier, tape, printable, l.Form.String())
	}
	return 0
}
