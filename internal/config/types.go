package config

import "time"

// Config represents the complete labelgw configuration.
//
// It is built once at process start (file, then environment overrides) and is
// treated as read-only afterwards.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	DryRun  bool          `yaml:"dry_run"`
	Printer PrinterConfig `yaml:"printer"`
	Output  OutputConfig  `yaml:"output"`
	Spool   SpoolConfig   `yaml:"spool"`
	State   StateConfig   `yaml:"state"`

	// SourceFile is the absolute path of the YAML file the config was read
	// from, empty when running from defaults and environment only.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	PIDFile   string `yaml:"pid_file,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Auth         APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings. An empty key disables
// authentication, matching the original LAN-only deployment.
type APIAuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// PrinterConfig describes the attached printer and how jobs reach it.
type PrinterConfig struct {
	Model string `yaml:"model"` // e.g. QL-700
	Tape  string `yaml:"tape"`  // loaded tape, informational
	URI   string `yaml:"uri"`   // usb://0x04f9:0x209b, file:///dev/usb/lp0, tcp://host:9100

	// Driver selects the driver adapter run inside the worker: native | brother_ql.
	Driver string `yaml:"driver"`
	// BrotherQLPath is the vendor CLI used by the brother_ql driver.
	BrotherQLPath string `yaml:"brother_ql_path,omitempty"`
	// Backend is passed to the vendor CLI as -b (pyusb, linux_kernel, network).
	Backend string `yaml:"backend,omitempty"`

	Threshold   float64 `yaml:"threshold"`
	Rotate      string  `yaml:"rotate"` // auto | 0 | 90 | 180 | 270
	HighQuality bool    `yaml:"high_quality"`
	Cut         bool    `yaml:"cut"`

	// Timeout bounds a single worker run.
	Timeout time.Duration `yaml:"timeout"`

	// Serialize guards the device with a file lock so concurrent jobs never
	// interleave at the USB layer.
	Serialize   bool          `yaml:"serialize"`
	LockPath    string        `yaml:"lock_path,omitempty"`
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// WorkerCommand overrides the isolated worker argv. Empty means
	// "<this executable> worker".
	WorkerCommand []string `yaml:"worker_command,omitempty"`
}

// OutputConfig defines where dry-run labels are written.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// SpoolConfig defines where live jobs are materialized before printing.
type SpoolConfig struct {
	Dir        string        `yaml:"dir"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// StateConfig defines the print journal database. An empty path disables it.
type StateConfig struct {
	Path string `yaml:"path"`
	// Retention prunes completed journal rows older than this. Zero keeps
	// everything.
	Retention time.Duration `yaml:"retention"`
}

// Defaults returns a Config with the values the service ships with.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "labelgw",
			LogLevel:  "info",
			LogFormat: "json",
		},
		API: APIConfig{
			Listen:       "0.0.0.0:8000",
			MaxBodyBytes: 16 << 20,
		},
		DryRun: true,
		Printer: PrinterConfig{
			Model:       "QL-700",
			Tape:        "62",
			URI:         "usb://0x04f9:0x209b",
			Driver:      "native",
			Backend:     "pyusb",
			Threshold:   70,
			Rotate:      "auto",
			HighQuality: true,
			Cut:         true,
			Timeout:     30 * time.Second,
			Serialize:   true,
			LockTimeout: 30 * time.Second,
		},
		Output: OutputConfig{
			Dir: "./labels_output",
		},
		Spool: SpoolConfig{
			Dir:        "./data/spool",
			StaleAfter: time.Hour,
		},
		State: StateConfig{
			Path:      "./data/journal.db",
			Retention: 30 * 24 * time.Hour,
		},
	}
}
