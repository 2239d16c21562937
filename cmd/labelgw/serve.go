package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/labelgw/internal/api"
	"github.com/mattjoyce/labelgw/internal/config"
	"github.com/mattjoyce/labelgw/internal/dispatch"
	"github.com/mattjoyce/labelgw/internal/events"
	"github.com/mattjoyce/labelgw/internal/executor"
	"github.com/mattjoyce/labelgw/internal/journal"
	"github.com/mattjoyce/labelgw/internal/lock"
	"github.com/mattjoyce/labelgw/internal/log"
	"github.com/mattjoyce/labelgw/internal/spool"
	"github.com/mattjoyce/labelgw/internal/storage"
)

const janitorInterval = 10 * time.Minute

// runtimeDeps is everything a dispatch.Service needs, plus what must be
// closed afterwards.
type runtimeDeps struct {
	svc     *dispatch.Service
	spool   *spool.Manager
	journal *journal.Journal
	db      *sql.DB
}

func (r *runtimeDeps) Close() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

// buildService wires the dispatcher from cfg. hub may be nil.
func buildService(ctx context.Context, cfg *config.Config, hub *events.Hub, logger *slog.Logger) (*runtimeDeps, error) {
	rt := &runtimeDeps{}

	deps := dispatch.Deps{}
	if hub != nil {
		deps.Events = hub
	}

	if cfg.State.Path != "" {
		db, err := storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.db = db
		rt.journal = journal.New(db)
		deps.Journal = rt.journal
		logger.Info("journal opened", "path", cfg.State.Path)
	}

	output, err := spool.NewOutputStore(cfg.Output.Dir)
	if err != nil {
		rt.Close()
		return nil, err
	}
	deps.Output = output

	spoolMgr, err := spool.NewManager(cfg.Spool.Dir)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.spool = spoolMgr
	deps.Spool = spoolMgr

	if !cfg.DryRun {
		command := cfg.Printer.WorkerCommand
		if len(command) == 0 {
			self, err := os.Executable()
			if err != nil {
				rt.Close()
				return nil, fmt.Errorf("resolve worker executable: %w", err)
			}
			command = []string{self, "worker"}
		}
		runner, err := executor.New(command, cfg.Printer.Timeout)
		if err != nil {
			rt.Close()
			return nil, err
		}
		deps.Runner = runner

		if cfg.Printer.Serialize {
			if err := storage.RequireLocalFilesystem(cfg.LockPath(), storage.UseDeviceLock); err != nil {
				rt.Close()
				return nil, err
			}
			deviceLock, err := lock.NewDeviceLock(cfg.LockPath())
			if err != nil {
				rt.Close()
				return nil, err
			}
			deps.Lock = deviceLock
		}
	}

	svc, err := dispatch.New(cfg, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.svc = svc
	return rt, nil
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.SetupWriter(os.Stdout, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	fingerprint, err := cfg.Fingerprint()
	if err != nil {
		logger.Warn("failed to fingerprint config", "error", err)
	}
	logger.Info("labelgw starting",
		"version", currentVersionInfo().Version,
		"config", cfg.SourceFile,
		"config_blake3", fingerprint,
		"dry_run", cfg.DryRun,
		"driver", cfg.Printer.Driver,
		"model", cfg.Printer.Model,
	)

	pidLock, err := lock.AcquirePIDLock(cfg.PIDPath())
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.PIDPath(), "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", cfg.PIDPath())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(256)
	rt, err := buildService(ctx, cfg, hub, logger)
	if err != nil {
		logger.Error("failed to initialize print service", "error", err)
		return 1
	}
	defer rt.Close()

	var jobs api.JobStore
	if rt.journal != nil {
		jobs = rt.journal
	}
	var lockWait time.Duration
	if cfg.Printer.Serialize && !cfg.DryRun {
		lockWait = cfg.Printer.LockTimeout
	}
	server := api.New(api.Config{
		Listen:       cfg.API.Listen,
		APIKey:       cfg.API.Auth.APIKey,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
		ServiceName:  cfg.Service.Name,
		Version:      currentVersionInfo().Version,
		DryRun:       cfg.DryRun,
		PrinterModel: cfg.Printer.Model,
		TapeSize:     cfg.Printer.Tape,
		Driver:       cfg.Printer.Driver,
		PrintTimeout: cfg.Printer.Timeout,
		LockTimeout:  lockWait,
	}, rt.svc, jobs, hub, log.WithComponent("api"))

	go runJanitor(ctx, cfg, rt, log.WithComponent("janitor"))

	logger.Info("labelgw running (press Ctrl+C to stop)", "listen", cfg.API.Listen)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		return 1
	}
	logger.Info("labelgw stopped")
	return 0
}

// runJanitor removes abandoned spool directories and prunes old journal rows
// until ctx is done.
func runJanitor(ctx context.Context, cfg *config.Config, rt *runtimeDeps, logger *slog.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		sweep(ctx, cfg, rt, logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, cfg *config.Config, rt *runtimeDeps, logger *slog.Logger) {
	report, err := rt.spool.Cleanup(ctx, cfg.Spool.StaleAfter)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("spool cleanup failed", "error", err)
	} else if report.DeletedDirs > 0 {
		logger.Info("removed stale spool directories", "count", report.DeletedDirs)
	}

	if rt.journal == nil || cfg.State.Retention <= 0 {
		return
	}
	n, err := rt.journal.Prune(ctx, cfg.State.Retention)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("journal prune failed", "error", err)
		}
		return
	}
	if n > 0 {
		logger.Info("pruned journal", "rows", n, "older_than", cfg.State.Retention.String())
	}
}

func runPrint(args []string) int {
	fs := flag.NewFlagSet("print", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	label := fs.String("label", "", "Label size identifier, e.g. 62 or 29x90")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 || *label == "" {
		printPrintHelp()
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)

	image, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildService(ctx, cfg, nil, log.WithComponent("main"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize print service: %v\n", err)
		return 1
	}
	defer rt.Close()

	res, err := rt.svc.Dispatch(ctx, dispatch.Request{
		ImageData: base64.StdEncoding.EncodeToString(image),
		Label:     *label,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print label: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}
	fmt.Println(res.Message)
	fmt.Printf("job: %s\n", res.JobID)
	return 0
}
