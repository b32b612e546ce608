package pkg

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/config"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/installer"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
)

func install(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}

	packages, err := installer.FindPackages(cfg.DownloadDir)
	if err != nil {
		return err
	}
	if len(packages) == 0 {
		log.Info("No update packages found", log.String("dir", cfg.DownloadDir))
		return nil
	}

	if c.NArg() == 0 {
		fmt.Println("Downloaded packages:")
		for _, pkg := range packages {
			fmt.Printf("  %s (%s)\n", filepath.Base(pkg.Path), pkg.Label)
		}
		fmt.Println("\nRun: winshield install <package file or KB id>")
		return nil
	}

	selector := c.Args().First()
	pkg, err := selectPackage(packages, selector)
	if err != nil {
		return err
	}

	if err := installer.New().Install(ctx, pkg); err != nil {
		return xerrors.Errorf("install failed: %w", err)
	}

	log.Info("Package installed", log.KB(pkg.Label))
	return nil
}

// selectPackage matches the operator's selector against package file
// names and KB labels.
func selectPackage(packages []installer.Package, selector string) (installer.Package, error) {
	for _, pkg := range packages {
		if strings.EqualFold(filepath.Base(pkg.Path), selector) || strings.EqualFold(pkg.Label, selector) {
			return pkg, nil
		}
	}
	return installer.Package{}, xerrors.Errorf("no downloaded package matches %q", selector)
}
