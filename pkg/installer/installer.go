// Package installer applies downloaded update packages through the
// platform servicing tools.
package installer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

// rebootRequired is the servicing exit code for success pending restart.
const rebootRequired = 3010

var kbLabelPattern = regexp.MustCompile(`(?i)(KB\d{4,8})`)

// Package is one installable update file on disk.
type Package struct {
	Path  string
	Label string
}

// Installer runs the platform servicing tools. The exec function is
// swappable under test.
type Installer struct {
	execute func(ctx context.Context, argv []string) (int, error)
	logger  *log.Logger
}

func New() *Installer {
	return &Installer{
		execute: run,
		logger:  log.WithPrefix("installer"),
	}
}

// NewWithExec returns an installer with a custom command runner.
func NewWithExec(execute func(ctx context.Context, argv []string) (int, error)) *Installer {
	return &Installer{
		execute: execute,
		logger:  log.WithPrefix("installer"),
	}
}

// FindPackages lists the .msu and .cab packages in dir, sorted by name.
func FindPackages(dir string) ([]Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Errorf("failed to read download dir: %w", err)
	}

	var packages []Package
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".msu" && ext != ".cab" {
			continue
		}
		packages = append(packages, Package{
			Path:  filepath.Join(dir, entry.Name()),
			Label: Label(entry.Name()),
		})
	}

	sort.Slice(packages, func(i, j int) bool {
		return strings.ToLower(filepath.Base(packages[i].Path)) < strings.ToLower(filepath.Base(packages[j].Path))
	})
	return packages, nil
}

// Label extracts the update identifier from a package filename, falling
// back to the filename itself.
func Label(filename string) string {
	m := kbLabelPattern.FindStringSubmatch(filename)
	if m == nil {
		return filename
	}
	id, err := types.ParseKBID(m[1])
	if err != nil {
		return filename
	}
	return string(id)
}

// Install applies one package: wusa for .msu, dism for .cab. Exit code
// 3010 means installed pending reboot and is treated as success.
func (i *Installer) Install(ctx context.Context, pkg Package) error {
	var argv []string
	switch strings.ToLower(filepath.Ext(pkg.Path)) {
	case ".msu":
		argv = []string{"wusa.exe", pkg.Path, "/quiet", "/norestart"}
	case ".cab":
		argv = []string{"dism.exe", "/online", "/add-package", "/packagepath:" + pkg.Path, "/quiet", "/norestart"}
	default:
		return xerrors.Errorf("unsupported package type: %s", pkg.Path)
	}

	i.logger.Info("Installing package", log.KB(pkg.Label))

	code, err := i.execute(ctx, argv)
	if err != nil {
		return xerrors.Errorf("%s failed: %w", argv[0], err)
	}

	switch code {
	case 0:
		return nil
	case rebootRequired:
		i.logger.Warn("Install succeeded, reboot required", log.KB(pkg.Label))
		return nil
	default:
		return xerrors.Errorf("%s exited with code %d", argv[0], code)
	}
}

func run(ctx context.Context, argv []string) (int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if xerrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}
