package pkg

import (
	"os"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/config"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/report"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/resultdb"
)

func show(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}

	db, err := resultdb.Open(cfg.CacheDir)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.LatestResult()
	if err != nil {
		return xerrors.Errorf("no scan result available, run scan first: %w", err)
	}

	report.Write(os.Stdout, result)
	return nil
}
