package driver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultRawPort = "9100"

// Locations of the kernel printer-class devices. Variables so tests can point
// them at a fake tree.
var (
	sysfsUSBMisc = "/sys/class/usbmisc"
	devUSBRoot   = "/dev/usb"
)

// Send delivers a raster stream to the printer named by uri:
//
//	usb://0x04f9:0x209b[/serial]  first matching /dev/usb/lpN
//	file:///dev/usb/lp0           explicit device node (a bare path works too)
//	tcp://host[:port]             raw socket, port 9100 by default
func Send(ctx context.Context, uri string, data []byte) error {
	switch {
	case strings.HasPrefix(uri, "usb://"):
		node, err := resolveUSB(uri)
		if err != nil {
			return err
		}
		return writeDevice(node, data)
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return newError(KindDevice, "invalid printer uri %q: %v", uri, err)
		}
		return writeDevice(u.Path, data)
	case strings.HasPrefix(uri, "tcp://"):
		return sendTCP(ctx, strings.TrimPrefix(uri, "tcp://"), data)
	case strings.HasPrefix(uri, "/"):
		return writeDevice(uri, data)
	default:
		return newError(KindDevice, "unsupported printer uri %q", uri)
	}
}

// ValidateURI checks the syntax of a printer uri without touching the device.
func ValidateURI(uri string) error {
	switch {
	case strings.HasPrefix(uri, "usb://"):
		_, err := parseUSBURI(uri)
		return err
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return err
		}
		if u.Path == "" {
			return fmt.Errorf("file uri %q has no path", uri)
		}
		return nil
	case strings.HasPrefix(uri, "tcp://"):
		if strings.TrimPrefix(uri, "tcp://") == "" {
			return fmt.Errorf("tcp uri %q has no host", uri)
		}
		return nil
	case strings.HasPrefix(uri, "/"):
		return nil
	default:
		return fmt.Errorf("unsupported printer uri %q", uri)
	}
}

// Locate resolves uri to the device node or host:port that Send would use,
// without writing anything. Device nodes must exist.
func Locate(uri string) (string, error) {
	if err := ValidateURI(uri); err != nil {
		return "", err
	}
	var node string
	switch {
	case strings.HasPrefix(uri, "usb://"):
		return resolveUSB(uri)
	case strings.HasPrefix(uri, "tcp://"):
		hostport := strings.TrimPrefix(uri, "tcp://")
		if _, _, err := net.SplitHostPort(hostport); err != nil {
			hostport = net.JoinHostPort(hostport, defaultRawPort)
		}
		return hostport, nil
	case strings.HasPrefix(uri, "file://"):
		u, _ := url.Parse(uri)
		node = u.Path
	default:
		node = uri
	}
	if _, err := os.Stat(node); err != nil {
		return "", newError(KindDevice, "Device not found: %s (%v)", uri, err)
	}
	return node, nil
}

func writeDevice(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return newError(KindDevice, "open printer device %s: %v", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return newError(KindDevice, "write to printer device %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return newError(KindDevice, "close printer device %s: %v", path, err)
	}
	return nil
}

func sendTCP(ctx context.Context, hostport string, data []byte) error {
	if hostport == "" {
		return newError(KindDevice, "tcp printer uri has no host")
	}
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		hostport = net.JoinHostPort(hostport, defaultRawPort)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return newError(KindDevice, "connect to printer %s: %v", hostport, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	}
	if _, err := conn.Write(data); err != nil {
		return newError(KindDevice, "write to printer %s: %v", hostport, err)
	}
	return nil
}

// usbID is a parsed usb://vendor:product[/serial] identifier.
type usbID struct {
	vendor  uint16
	product uint16
	serial  string
}

func parseUSBURI(uri string) (usbID, error) {
	rest := strings.TrimPrefix(uri, "usb://")
	var id usbID
	if slash := strings.Index(rest, "/"); slash >= 0 {
		id.serial = rest[slash+1:]
		rest = rest[:slash]
	}
	vendor, product, ok := strings.Cut(rest, ":")
	if !ok {
		return id, fmt.Errorf("expected usb://vendor:product, got %q", uri)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(vendor), "0x"), 16, 16)
	if err != nil {
		return id, fmt.Errorf("invalid vendor id %q", vendor)
	}
	p, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(product), "0x"), 16, 16)
	if err != nil {
		return id, fmt.Errorf("invalid product id %q", product)
	}
	id.vendor, id.product = uint16(v), uint16(p)
	return id, nil
}

// resolveUSB finds the printer-class device node whose USB descriptor matches
// uri. The lookup runs on every job, so a printer that re-enumerated after
// standby is found under its new node.
func resolveUSB(uri string) (string, error) {
	id, err := parseUSBURI(uri)
	if err != nil {
		return "", newError(KindDevice, "invalid printer uri: %v", err)
	}

	entries, err := os.ReadDir(sysfsUSBMisc)
	if err != nil {
		return "", newError(KindDevice, "Device not found: %s (%v)", uri, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "lp") {
			continue
		}
		iface, err := filepath.EvalSymlinks(filepath.Join(sysfsUSBMisc, name, "device"))
		if err != nil {
			continue
		}
		usbDev := filepath.Dir(iface)
		if readHex(filepath.Join(usbDev, "idVendor")) != id.vendor ||
			readHex(filepath.Join(usbDev, "idProduct")) != id.product {
			continue
		}
		if id.serial != "" && readTrimmed(filepath.Join(usbDev, "serial")) != id.serial {
			continue
		}
		return filepath.Join(devUSBRoot, name), nil
	}

	return "", newError(KindDevice, "Device not found: %s", uri)
}

func readTrimmed(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readHex(path string) uint16 {
	v, err := strconv.ParseUint(readTrimmed(path), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}
