package pkg

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/briandowns/spinner"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/catalog"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/config"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/resultdb"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

func download(c *cli.Context) error {
	ctx := context.Background()

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

	missing := result.MissingEntries()
	if len(missing) == 0 {
		log.Info("No missing updates")
		return nil
	}

	if c.NArg() == 0 {
		fmt.Println("Missing updates:")
		for _, e := range missing {
			fmt.Printf("  %s [%s]\n", e.ID, e.UpdateType)
		}
		fmt.Println("\nRun: winshield download <KB id>")
		return nil
	}

	id, err := types.ParseKBID(c.Args().First())
	if err != nil {
		return err
	}

	var entry *types.CorrelationEntry
	for i := range missing {
		if missing[i].ID == id {
			entry = &missing[i]
			break
		}
	}
	if entry == nil {
		return xerrors.Errorf("%s is not classified as missing in the last scan", id)
	}

	client := catalog.NewClient(cfg.CatalogEndpoint,
		catalog.WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}))
	constraints := catalog.ConstraintsFromBaseline(result.Baseline)

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithSuffix(" searching catalog..."))
	sp.Start()
	candidates, err := client.Search(ctx, id)
	sp.Stop()
	if err != nil {
		return err
	}

	best, err := catalog.Best(candidates, string(id), constraints)
	if err != nil {
		return xerrors.Errorf("no suitable package for %s: %w", id, err)
	}
	log.Info("Selected candidate", log.KB(string(id)), log.String("title", best.Title))

	urls, err := client.DownloadURLs(ctx, best.UpdateID)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return xerrors.Errorf("no download URL found for %s", id)
	}

	path, err := client.Download(ctx, urls[0], cfg.DownloadDir)
	if err != nil {
		return err
	}

	log.Info("Package ready", log.String("path", path))
	return nil
}
