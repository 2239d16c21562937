package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Use names a file whose locking only works on a local filesystem.
type Use int

const (
	// UseJournal is the SQLite journal (WAL and busy locks).
	UseJournal Use = iota
	// UseDeviceLock is the flock(2) file that serializes the printer.
	UseDeviceLock
)

func (u Use) describe() (what, advice string) {
	switch u {
	case UseDeviceLock:
		return "device lock", "flock does not exclude across hosts there. Point printer.lock_path (or spool.dir) at local disk"
	default:
		return "journal", "SQLite requires a local filesystem for reliable locking. Point state.path (or LABELGW_STATE_PATH) at local disk"
	}
}

// errDetectUnsupported is returned by detectors on platforms without statfs.
var errDetectUnsupported = errors.New("filesystem detection is unsupported on this platform")

var networkFilesystems = map[string]struct{}{
	"9p":     {},
	"afpfs":  {},
	"afs":    {},
	"ceph":   {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// RequireLocalFilesystem fails when path, or its nearest existing parent,
// sits on a network filesystem. It passes where the platform cannot tell.
func RequireLocalFilesystem(path string, use Use) error {
	return requireLocal(path, use, detectFilesystemType)
}

// ValidateDatabasePath reports whether path is safe for the journal database
// without opening it.
func ValidateDatabasePath(path string) error {
	return RequireLocalFilesystem(path, UseJournal)
}

func requireLocal(path string, use Use, detector func(string) (string, error)) error {
	what, advice := use.describe()
	if path == "" {
		return fmt.Errorf("%s path is empty", what)
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve %s path %q: %w", what, path, err)
	}

	fsType, err := detector(inspectPath)
	if errors.Is(err, errDetectUnsupported) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("%s %q is on network filesystem %q; %s", what, path, fsType, advice)
	}
	return nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	for candidate := absPath; ; {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
	return found
}
