package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/labelgw/internal/config"
	"github.com/mattjoyce/labelgw/internal/journal"
	"github.com/mattjoyce/labelgw/internal/storage"
)

func runJobNoun(args []string) int {
	if len(args) < 1 {
		printJobNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printJobNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "list":
		return runJobList(actionArgs)
	case "inspect":
		return runJobInspect(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown job action: %s\n", action)
		return 1
	}
}

func printJobNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: labelgw job <action>")
	fmt.Fprintln(w, "Actions: list [--status S] [--label L] [--limit N] [--json], inspect <id> [--json]")
}

func openJournalForTool(configPath string) (*journal.Journal, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.State.Path == "" {
		return nil, nil, errors.New("print journal is disabled (state.path is empty)")
	}
	if _, err := os.Stat(cfg.State.Path); err != nil {
		return nil, nil, fmt.Errorf("journal not found at %s: %w", cfg.State.Path, err)
	}
	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	return journal.New(db), func() { _ = db.Close() }, nil
}

func runJobList(args []string) int {
	fs := flag.NewFlagSet("job list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	status := fs.String("status", "", "Filter by status (queued, succeeded, failed, timed_out)")
	label := fs.String("label", "", "Filter by label identifier")
	limit := fs.Int("limit", 20, "Maximum number of jobs")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	j, closeFn, err := openJournalForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeFn()

	entries, err := j.List(context.Background(), journal.ListFilter{
		Status: journal.Status(*status),
		Label:  *label,
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list jobs: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(entries)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tSTATUS\tDRY RUN\tCREATED\tERROR")
	for _, e := range entries {
		errText := ""
		if e.Error != nil {
			errText = *e.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
			e.ID, e.Label, e.Status, e.DryRun, e.CreatedAt.Local().Format(time.DateTime), errText)
	}
	_ = tw.Flush()
	return 0
}

func runJobInspect(args []string) int {
	fs := flag.NewFlagSet("job inspect", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: labelgw job inspect [--config PATH] [--json] <id>")
		return 1
	}

	j, closeFn, err := openJournalForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeFn()

	e, err := j.Get(context.Background(), fs.Arg(0))
	if err != nil {
		if errors.Is(err, journal.ErrJobNotFound) {
			fmt.Fprintf(os.Stderr, "Job not found: %s\n", fs.Arg(0))
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to load job: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(e)
	}

	fmt.Printf("job:        %s\n", e.ID)
	fmt.Printf("status:     %s\n", e.Status)
	fmt.Printf("label:      %s\n", e.Label)
	fmt.Printf("model:      %s\n", e.Model)
	fmt.Printf("driver:     %s\n", e.Driver)
	fmt.Printf("dry_run:    %t\n", e.DryRun)
	fmt.Printf("size:       %d bytes\n", e.SizeBytes)
	fmt.Printf("blake3:     %s\n", e.Digest)
	fmt.Printf("created_at: %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.CompletedAt != nil {
		fmt.Printf("completed:  %s\n", e.CompletedAt.Format(time.RFC3339))
	}
	if e.Duration != nil {
		fmt.Printf("duration:   %s\n", e.Duration.String())
	}
	if e.Filename != nil {
		fmt.Printf("filename:   %s\n", *e.Filename)
	}
	if e.ExitCode != nil {
		fmt.Printf("exit_code:  %d\n", *e.ExitCode)
	}
	if e.Error != nil {
		fmt.Printf("error:      %s\n", *e.Error)
	}
	if e.Stderr != nil && *e.Stderr != "" {
		fmt.Printf("stderr:\n%s\n", *e.Stderr)
	}
	return 0
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
