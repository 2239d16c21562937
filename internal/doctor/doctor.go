// Package doctor checks a loaded labelgw configuration against the host it
// is about to run on: directories, driver tooling, printer device and journal.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/mattjoyce/labelgw/internal/config"
	"github.com/mattjoyce/labelgw/internal/driver"
	"github.com/mattjoyce/labelgw/internal/storage"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor runs host checks for one configuration.
type Doctor struct {
	cfg *config.Config

	lookPath func(string) (string, error)
	locate   func(string) (string, error)
	localFS  func(string, storage.Use) error
}

// New creates a Doctor for a config that has already passed config.Load.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		locate:   driver.Locate,
		localFS:  storage.RequireLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validatePrinter(r)
	d.validateDriver(r)
	d.validateWorker(r)
	d.validateDirectories(r)
	d.validateDeviceLock(r)
	d.validateJournal(r)
	d.warnExposedAPI(r)
	d.warnTimeouts(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validatePrinter checks the model, loaded tape and device.
func (d *Doctor) validatePrinter(r *Result) {
	p := d.cfg.Printer
	if _, ok := driver.LookupModel(p.Model); !ok {
		d.addError(r, "printer", "printer.model",
			fmt.Sprintf("unknown printer model %q (supported: %s)", p.Model, strings.Join(driver.Models(), ", ")))
	}
	if p.Tape != "" {
		if _, ok := driver.LookupLabel(p.Tape); !ok {
			d.addWarning(r, "printer", "printer.tape", fmt.Sprintf("tape %q is not in the label catalogue", p.Tape))
		}
	}

	if d.cfg.DryRun {
		return
	}
	if err := driver.ValidateURI(p.URI); err != nil {
		d.addError(r, "printer", "printer.uri", err.Error())
		return
	}
	if p.Driver != "native" {
		return
	}
	// The printer may simply be switched off.
	if _, err := d.locate(p.URI); err != nil {
		d.addWarning(r, "printer", "printer.uri", err.Error())
	}
}

// validateDriver checks that the vendor CLI is installed when it is used.
func (d *Doctor) validateDriver(r *Result) {
	p := d.cfg.Printer
	if p.Driver != "brother_ql" {
		return
	}
	tool := p.BrotherQLPath
	if tool == "" {
		tool = "brother_ql"
	}
	if _, err := d.lookPath(tool); err != nil {
		msg := fmt.Sprintf("brother_ql CLI %q not found: %v", tool, err)
		if d.cfg.DryRun {
			d.addWarning(r, "driver", "printer.brother_ql_path", msg)
		} else {
			d.addError(r, "driver", "printer.brother_ql_path", msg)
		}
	}
}

// validateWorker checks an explicit worker command.
func (d *Doctor) validateWorker(r *Result) {
	cmd := d.cfg.Printer.WorkerCommand
	if len(cmd) == 0 || d.cfg.DryRun {
		return
	}
	if _, err := d.lookPath(cmd[0]); err != nil {
		d.addError(r, "worker", "printer.worker_command", fmt.Sprintf("worker %q not found: %v", cmd[0], err))
	}
}

// validateDirectories checks that the directories the active mode writes to
// are writable.
func (d *Doctor) validateDirectories(r *Result) {
	if d.cfg.DryRun {
		if err := probeWritable(d.cfg.Output.Dir); err != nil {
			d.addError(r, "directories", "output.dir", err.Error())
		}
	}
	if err := probeWritable(d.cfg.Spool.Dir); err != nil {
		d.addError(r, "directories", "spool.dir", err.Error())
	}
}

// validateDeviceLock checks that the serialization lock lives on a
// filesystem where flock excludes.
func (d *Doctor) validateDeviceLock(r *Result) {
	if d.cfg.DryRun || !d.cfg.Printer.Serialize {
		return
	}
	if err := d.localFS(d.cfg.LockPath(), storage.UseDeviceLock); err != nil {
		d.addError(r, "printer", "printer.lock_path", err.Error())
	}
}

func (d *Doctor) validateJournal(r *Result) {
	if d.cfg.State.Path == "" {
		d.addWarning(r, "journal", "state.path", "print journal is disabled; /jobs will answer 404")
		return
	}
	if err := d.localFS(d.cfg.State.Path, storage.UseJournal); err != nil {
		d.addError(r, "journal", "state.path", err.Error())
	}
}

// warnExposedAPI warns when the print endpoint is reachable off-host without
// a key.
func (d *Doctor) warnExposedAPI(r *Result) {
	if d.cfg.API.Auth.APIKey != "" {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		return
	}
	if host == "localhost" {
		return
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return
	}
	d.addWarning(r, "api", "api.auth.api_key",
		fmt.Sprintf("API listens on %s without an api_key; anyone on the network can print", d.cfg.API.Listen))
}

func (d *Doctor) warnTimeouts(r *Result) {
	p := d.cfg.Printer
	if d.cfg.DryRun {
		return
	}
	if !p.Serialize {
		d.addWarning(r, "printer", "printer.serialize",
			"concurrent jobs may interleave at the device; enable printer.serialize")
		return
	}
	if p.LockTimeout < p.Timeout {
		d.addWarning(r, "printer", "printer.lock_timeout",
			fmt.Sprintf("lock_timeout %s is shorter than timeout %s; a queued job can fail as busy while another prints", p.LockTimeout, p.Timeout))
	}
}

// warnMissingEnvVars warns about ${VAR} references where VAR is not set.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := []struct{ name, value string }{
		{"api.auth.api_key", d.cfg.API.Auth.APIKey},
		{"printer.brother_ql_path", d.cfg.Printer.BrotherQLPath},
		{"output.dir", d.cfg.Output.Dir},
		{"spool.dir", d.cfg.Spool.Dir},
		{"state.path", d.cfg.State.Path},
	}
	for _, f := range fields {
		for _, m := range envVarPattern.FindAllStringSubmatch(f.value, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", f.name, fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
}

// probeWritable creates dir if needed and writes a scratch file into it.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %v", dir, err)
	}
	f, err := os.CreateTemp(dir, ".labelgw-probe-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %v", dir, err)
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return nil
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Host checks passed.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "Host checks passed (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Host checks failed (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
