// Package device prepares the Android device shared by every target of an
// android-ut run.
package device

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/signalnine/crucible/internal/command"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/logging"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/target"
)

const bootPollInterval = 2 * time.Second

type Options struct {
	Config config.Device
	Layout result.Layout
	Runner command.Runner
	Logger *slog.Logger
	// ADB and Emulator override the tool paths, "adb" and "emulator" by default.
	ADB      string
	Emulator string
}

// Device selects or boots a device, captures its log and hands it to targets.
type Device struct {
	cfg      config.Device
	layout   result.Layout
	runner   command.Runner
	log      *slog.Logger
	adb      string
	emulator string

	mu       sync.Mutex
	serial   string
	rooted   bool
	emu      *background
	logcat   *background
	injected []*target.Target
}

func New(opts Options) *Device {
	d := &Device{
		cfg:      opts.Config,
		layout:   opts.Layout,
		runner:   opts.Runner,
		log:      logging.OrDiscard(opts.Logger),
		adb:      opts.ADB,
		emulator: opts.Emulator,
	}
	if d.runner == nil {
		d.runner = command.Exec{}
	}
	if d.adb == "" {
		d.adb = "adb"
	}
	if d.emulator == "" {
		d.emulator = "emulator"
	}
	if d.cfg.BootTimeout <= 0 {
		d.cfg.BootTimeout = 5 * time.Minute
	}
	return d
}

// Serial is the id of the prepared device, "" before Prepare.
func (d *Device) Serial() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serial
}

func (d *Device) adbSpec(args ...string) command.Spec {
	return command.Spec{Name: d.adb, Args: args}
}

func (d *Device) onDevice(serial string, args ...string) command.Spec {
	return d.adbSpec(append([]string{"-s", serial}, args...)...)
}

// Prepare selects the configured device, the first attached one, or boots
// the configured AVD, then waits for it to finish booting.
func (d *Device) Prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.BootTimeout)
	defer cancel()

	serial := d.cfg.Serial
	switch {
	case serial != "":
	case d.cfg.AVD != "":
		s, err := d.bootEmulator(ctx)
		if err != nil {
			return err
		}
		serial = s
	default:
		devices, err := d.devices(ctx)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return result.Errf(result.EnvPrepare, "no android device attached and no avd configured")
		}
		serial = devices[0]
	}

	if _, err := d.runner.Run(ctx, d.onDevice(serial, "wait-for-device")); err != nil {
		return prepareErr(err, "waiting for "+serial)
	}
	if err := d.waitBoot(ctx, serial); err != nil {
		return err
	}
	rooted := d.checkRoot(ctx, serial)

	d.mu.Lock()
	d.serial = serial
	d.rooted = rooted
	d.mu.Unlock()
	d.log.Info("device ready", "serial", serial, "rooted", rooted)
	return nil
}

// devices lists attached devices in the "device" state.
func (d *Device) devices(ctx context.Context) ([]string, error) {
	out, err := d.runner.Run(ctx, d.adbSpec("devices"))
	if err != nil {
		return nil, prepareErr(err, "listing devices")
	}
	return ParseDevices(out), nil
}

// ParseDevices extracts serials from `adb devices` output.
func ParseDevices(out []byte) []string {
	var serials []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials
}

func (d *Device) bootEmulator(ctx context.Context) (string, error) {
	before, err := d.devices(ctx)
	if err != nil {
		return "", err
	}
	logFile, err := os.Create(filepath.Join(d.layout.Root, "emulator.log"))
	if err != nil {
		return "", prepareErr(err, "creating emulator log")
	}
	emu, err := startBackground(logFile, d.emulator, "-avd", d.cfg.AVD, "-no-window", "-no-audio", "-no-snapshot")
	if err != nil {
		return "", prepareErr(err, "booting "+d.cfg.AVD)
	}
	d.mu.Lock()
	d.emu = emu
	d.mu.Unlock()
	d.log.Info("booting emulator", "avd", d.cfg.AVD)

	known := make(map[string]bool, len(before))
	for _, s := range before {
		known[s] = true
	}
	for {
		if emu.exited() {
			return "", result.Errf(result.EnvPrepare, "emulator %s exited during boot", d.cfg.AVD)
		}
		devices, err := d.devices(ctx)
		if err != nil {
			return "", err
		}
		for _, s := range devices {
			if !known[s] && strings.HasPrefix(s, "emulator-") {
				return s, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", result.Errf(result.EnvPrepare, "emulator %s not attached after %s", d.cfg.AVD, d.cfg.BootTimeout)
		case <-time.After(bootPollInterval):
		}
	}
}

func (d *Device) waitBoot(ctx context.Context, serial string) error {
	for {
		out, err := d.runner.Run(ctx, d.onDevice(serial, "shell", "getprop", "sys.boot_completed"))
		if err == nil && strings.TrimSpace(string(out)) == "1" {
			return nil
		}
		select {
		case <-ctx.Done():
			return result.Errf(result.EnvPrepare, "%s did not finish booting within %s", serial, d.cfg.BootTimeout)
		case <-time.After(bootPollInterval):
		}
	}
}

func (d *Device) checkRoot(ctx context.Context, serial string) bool {
	if _, err := d.runner.Run(ctx, d.onDevice(serial, "root")); err != nil {
		d.log.Debug("adb root failed", "serial", serial, "err", err)
	}
	out, err := d.runner.Run(ctx, d.onDevice(serial, "shell", "id", "-u"))
	return err == nil && strings.TrimSpace(string(out)) == "0"
}

// Inject hands the device id and the restart handler to t.
func (d *Device) Inject(t *target.Target) {
	d.mu.Lock()
	serial := d.serial
	known := false
	for _, it := range d.injected {
		if it == t {
			known = true
			break
		}
	}
	if !known {
		d.injected = append(d.injected, t)
	}
	d.mu.Unlock()
	t.InsertGlobalInfo(target.InfoDeviceName, serial)
	t.InsertGlobalInfo(target.InfoRestartDevice, target.RestartFunc(d.Restart))
}

// Restart tears the device down, prepares it again and re-injects it into
// every target seen so far. A running log capture is resumed.
func (d *Device) Restart(ctx context.Context) error {
	d.mu.Lock()
	capturing := d.logcat != nil
	targets := append([]*target.Target(nil), d.injected...)
	d.mu.Unlock()

	d.log.Warn("restarting device", "serial", d.Serial())
	if err := d.Teardown(ctx); err != nil {
		d.log.Warn("device teardown failed", "err", err)
	}
	if err := d.Prepare(ctx); err != nil {
		return err
	}
	for _, t := range targets {
		d.Inject(t)
	}
	if capturing {
		return d.startLogcat(ctx, false)
	}
	return nil
}

// Capture clears the device log buffer and streams it into device.log.
func (d *Device) Capture(ctx context.Context) error {
	return d.startLogcat(ctx, true)
}

func (d *Device) startLogcat(ctx context.Context, fresh bool) error {
	serial := d.Serial()
	if serial == "" {
		return result.Errf(result.EnvPrepare, "device is not prepared")
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if fresh {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if _, err := d.runner.Run(ctx, d.onDevice(serial, "logcat", "-c")); err != nil {
			return prepareErr(err, "clearing logcat")
		}
	}
	logFile, err := os.OpenFile(d.layout.DeviceLogPath(), flags, 0o644)
	if err != nil {
		return prepareErr(err, "opening device log")
	}
	lc, err := startBackground(logFile, d.adb, "-s", serial, "logcat", "-v", "time")
	if err != nil {
		return prepareErr(err, "starting logcat")
	}
	d.mu.Lock()
	d.logcat = lc
	d.mu.Unlock()
	return nil
}

// CoverageAllowed reports whether execution data can be pulled from the
// device. Only rooted devices qualify.
func (d *Device) CoverageAllowed(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.rooted {
		d.log.Warn("device has no root permission, skipping coverage generation", "serial", d.serial)
	}
	return d.rooted
}

// Teardown stops log capture and any emulator this device booted.
func (d *Device) Teardown(ctx context.Context) error {
	d.mu.Lock()
	lc, emu := d.logcat, d.emu
	d.logcat, d.emu = nil, nil
	serial := d.serial
	d.mu.Unlock()

	var errs []string
	if err := lc.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	if emu != nil {
		if _, err := d.runner.Run(ctx, d.onDevice(serial, "emu", "kill")); err != nil {
			d.log.Debug("adb emu kill failed", "serial", serial, "err", err)
		}
		if err := emu.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("device teardown: %s", strings.Join(errs, "; "))
	}
	return nil
}

// prepareErr reports err as an environment failure, whatever code it carried.
func prepareErr(err error, msg string) error {
	return &result.Error{Code: result.EnvPrepare, Message: msg, Cause: err}
}
