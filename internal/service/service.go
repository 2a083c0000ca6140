// Package service installs arcana as a per-user background service running
// "arcana serve": a launchd agent on macOS, a systemd user unit elsewhere.
package service

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/joho/godotenv"

	"github.com/chris/arcana/config"
)

const (
	label    = "com.arcana.oracle"
	unitName = "arcana.service"
)

// runner executes a control command. Tests replace it.
var runner = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

// attached runs a command wired to the terminal.
var attached = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func home() string {
	h, _ := os.UserHomeDir()
	return h
}

func binPath() string { return filepath.Join(home(), ".local", "bin", "arcana") }

type unitData struct {
	Label     string
	BinPath   string
	WorkDir   string
	StdoutLog string
	StderrLog string
}

// platform is one service manager.
type platform struct {
	name     string
	unitPath func() string
	tmpl     *template.Template
	load     [][]string
	unload   [][]string
	start    []string
	stop     []string
	status   []string
	logs     func() []string
}

func logPath(stream string) string {
	return filepath.Join(home(), "Library", "Logs", "arcana-"+stream+".log")
}

var launchd = platform{
	name:     "launchd",
	unitPath: func() string { return filepath.Join(home(), "Library", "LaunchAgents", label+".plist") },
	tmpl:     plistTemplate,
	load:     [][]string{{"launchctl", "load", "{unit}"}},
	unload:   [][]string{{"launchctl", "unload", "{unit}"}},
	start:    []string{"launchctl", "start", label},
	stop:     []string{"launchctl", "stop", label},
	status:   []string{"launchctl", "list", label},
	logs:     func() []string { return []string{"tail", "-f", logPath("stdout"), logPath("stderr")} },
}

var systemd = platform{
	name:     "systemd",
	unitPath: func() string { return filepath.Join(home(), ".config", "systemd", "user", unitName) },
	tmpl:     systemdTemplate,
	load: [][]string{
		{"systemctl", "--user", "daemon-reload"},
		{"systemctl", "--user", "enable", "--now", unitName},
	},
	unload: [][]string{{"systemctl", "--user", "disable", "--now", unitName}},
	start:  []string{"systemctl", "--user", "start", unitName},
	stop:   []string{"systemctl", "--user", "stop", unitName},
	status: []string{"systemctl", "--user", "status", "--no-pager", unitName},
	logs:   func() []string { return []string{"journalctl", "--user", "-u", unitName, "-f"} },
}

func current() platform {
	if runtime.GOOS == "darwin" {
		return launchd
	}
	return systemd
}

func (p platform) render(workDir string) (string, error) {
	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, unitData{
		Label:     label,
		BinPath:   binPath(),
		WorkDir:   workDir,
		StdoutLog: logPath("stdout"),
		StderrLog: logPath("stderr"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (p platform) runAll(cmds [][]string) error {
	for _, c := range cmds {
		args := make([]string, len(c))
		for i, a := range c {
			args[i] = strings.ReplaceAll(a, "{unit}", p.unitPath())
		}
		if err := runner(args[0], args[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// Install copies the binary to ~/.local/bin, seeds ~/.arcana/config from .env
// if needed, writes the service definition, and loads it.
func Install() error { return current().install() }

func (p platform) install() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}

	input, err := os.ReadFile(exe)
	if err != nil {
		return fmt.Errorf("reading binary: %w", err)
	}
	dest := binPath()
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, input, 0755); err != nil {
		return fmt.Errorf("copying binary to %s: %w", dest, err)
	}
	fmt.Printf("installed binary to %s\n", dest)

	if seeded, err := seedConfig(".env"); err != nil {
		return err
	} else if seeded {
		fmt.Printf("seeded config from .env -> %s\n", config.ConfigFile())
	} else {
		fmt.Printf("config at %s\n", config.ConfigFile())
	}

	unit, err := p.render(resolveWorkDir())
	if err != nil {
		return fmt.Errorf("generating %s unit: %w", p.name, err)
	}

	path := p.unitPath()
	if _, err := os.Stat(path); err == nil {
		_ = p.runAll(p.unload)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(unit), 0644); err != nil {
		return fmt.Errorf("writing unit: %w", err)
	}
	fmt.Printf("wrote %s\n", path)

	if err := p.runAll(p.load); err != nil {
		return fmt.Errorf("loading service: %w", err)
	}
	fmt.Println("service loaded and will start on login")
	return nil
}

// seedConfig copies envFile to the config file when none exists yet.
func seedConfig(envFile string) (bool, error) {
	if _, err := os.Stat(config.ConfigFile()); !os.IsNotExist(err) {
		return false, nil
	}
	data, err := os.ReadFile(envFile)
	if err != nil {
		return false, nil
	}
	if err := os.MkdirAll(config.ConfigDir(), 0700); err != nil {
		return false, fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(config.ConfigFile(), data, 0600); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}

// resolveWorkDir picks the service's working directory. A relative
// DATABASE_PATH in the config pins it to the current directory; otherwise
// it is ~/.arcana.
func resolveWorkDir() string {
	envVars, _ := godotenv.Read(config.ConfigFile())
	for _, key := range []string{"ARCANA_DATABASE_PATH", "DATABASE_PATH"} {
		if dbPath, ok := envVars[key]; ok && !filepath.IsAbs(dbPath) {
			if wd, err := os.Getwd(); err == nil {
				return wd
			}
		}
	}
	return config.ConfigDir()
}

// Uninstall unloads and removes the unit and removes the binary.
func Uninstall() error { return current().uninstall() }

func (p platform) uninstall() error {
	path := p.unitPath()
	if _, err := os.Stat(path); err == nil {
		if err := p.runAll(p.unload); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unload failed: %v\n", err)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("removing unit: %w", err)
		}
		fmt.Printf("removed %s\n", path)
	} else {
		fmt.Println("unit not found, skipping")
	}

	if _, err := os.Stat(binPath()); err == nil {
		if err := os.Remove(binPath()); err != nil {
			return fmt.Errorf("removing binary: %w", err)
		}
		fmt.Printf("removed %s\n", binPath())
	} else {
		fmt.Println("binary not found, skipping")
	}

	fmt.Println("uninstalled")
	return nil
}

func Start() error {
	p := current()
	return p.runAll([][]string{p.start})
}

func Stop() error {
	p := current()
	return p.runAll([][]string{p.stop})
}

func Restart() error {
	_ = Stop()
	return Start()
}

func Status() error {
	c := current().status
	if err := attached(c[0], c[1:]...); err != nil {
		fmt.Println("service is not loaded")
	}
	return nil
}

// Logs follows the service output.
func Logs() error {
	c := current().logs()
	return attached(c[0], c[1:]...)
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
		<string>serve</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

var systemdTemplate = template.Must(template.New("systemd").Parse(`[Unit]
Description=Arcana daily oracle
After=network-online.target

[Service]
ExecStart={{.BinPath}} serve
WorkingDirectory={{.WorkDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`))
