package setup

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	// BinaryName is the name of the installed binary.
	BinaryName = "newssync"

	// UnitName is the systemd user unit that runs the daemon.
	UnitName = "newssync.service"
)

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=newssync News sync daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart={{.BinaryPath}} daemon --config {{.ConfigPath}}
Restart=on-failure
RestartSec=30

[Install]
WantedBy=default.target
`))

// unitData holds template values for the systemd unit.
type unitData struct {
	BinaryPath string
	ConfigPath string
}

// BinaryInstallPath returns ~/.local/bin/newssync.
func BinaryInstallPath(homeDir string) string {
	return filepath.Join(homeDir, ".local", "bin", BinaryName)
}

// UnitPath returns the systemd user unit destination path.
func UnitPath(homeDir string) string {
	return filepath.Join(homeDir, ".config", "systemd", "user", UnitName)
}

// InstallBinary copies the running executable to ~/.local/bin.
func InstallBinary(homeDir string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving current executable path: %w", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}

	dest := BinaryInstallPath(homeDir)
	if self == dest {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	return copyFile(self, dest, 0o755)
}

// RenderUnit returns the unit file for the given binary and config paths.
func RenderUnit(binaryPath, configPath string) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, unitData{BinaryPath: binaryPath, ConfigPath: configPath}); err != nil {
		return nil, fmt.Errorf("executing unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteUnit renders the unit and writes it to ~/.config/systemd/user/.
func WriteUnit(homeDir, configPath string) error {
	data, err := RenderUnit(BinaryInstallPath(homeDir), configPath)
	if err != nil {
		return err
	}
	dest := UnitPath(homeDir)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating systemd user directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing unit to %s: %w", dest, err)
	}
	return nil
}

// EnableDaemon reloads systemd and starts the unit now and on login.
func EnableDaemon() error {
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", UnitName)
}

// DisableDaemon stops the unit and removes it from login startup. A unit
// that was never installed is not an error.
func DisableDaemon(homeDir string) error {
	if _, err := os.Stat(UnitPath(homeDir)); os.IsNotExist(err) {
		return nil
	}
	return systemctl("disable", "--now", UnitName)
}

// RemoveUnit deletes the unit file.
func RemoveUnit(homeDir string) error {
	p := UnitPath(homeDir)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing unit %s: %w", p, err)
	}
	return nil
}

// RemoveBinary deletes the installed binary.
func RemoveBinary(homeDir string) error {
	p := BinaryInstallPath(homeDir)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	return nil
}

// IsDaemonActive reports whether the unit is running.
func IsDaemonActive() bool {
	return exec.Command("systemctl", "--user", "is-active", "--quiet", UnitName).Run() == nil
}

// PurgeUserData removes the config and state database directories.
func PurgeUserData(homeDir string) error {
	dirs := []string{
		filepath.Join(homeDir, ".config", BinaryName),
		filepath.Join(homeDir, ".local", "share", BinaryName),
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing %s: %w", dir, err)
		}
	}
	return nil
}

// --- helpers -----------------------------------------------------------------

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}

// copyFile copies src to dst with the given permissions.
func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
