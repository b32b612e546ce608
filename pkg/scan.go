package pkg

import (
	"context"
	"net/http"
	"os"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/baseline"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/config"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/correlate"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/inventory"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/monthrange"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/msrc"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/product"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/pshell"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/report"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/resultdb"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/store"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/supersede"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

func scan(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}

	overridesPath := c.String("overrides")
	if overridesPath == "" {
		overridesPath = cfg.ProductOverrides
	}
	resolver, err := product.LoadResolver(overridesPath)
	if err != nil {
		return err
	}

	runner := pshell.NewRunner()

	log.Info("Collecting baseline...")
	b, err := baseline.NewCollector(runner, resolver).Collect(ctx)
	if err != nil {
		return xerrors.Errorf("baseline collection failed: %w", err)
	}
	if name := c.String("product"); name != "" {
		b.ProductName = name
	}
	log.Info("Baseline collected",
		log.String("os", b.OSName),
		log.String("display_version", b.DisplayVersion),
		log.String("product", b.ProductName))

	log.Info("Collecting inventory...")
	inv, err := inventory.NewCollector(runner).Collect(ctx)
	if err != nil {
		return xerrors.Errorf("inventory collection failed: %w", err)
	}
	log.Info("Inventory collected", log.Count(len(inv.KBs)), log.Bool("elevated", inv.Elevated))

	httpClient := &http.Client{Timeout: cfg.Timeout()}
	msrcClient := msrc.NewClient(cfg.MSRCEndpoint,
		msrc.WithHTTPClient(httpClient),
		msrc.WithConcurrency(cfg.FetchConcurrency))

	if latest, err := msrcClient.LatestMonth(ctx); err != nil {
		log.Warn("Could not determine latest advisory month", log.Err(err))
	} else {
		b.LatestMonth = latest
	}

	result, err := runCorrelation(ctx, msrcClient, b, inv)
	if err != nil {
		return err
	}

	db, err := resultdb.Open(cfg.CacheDir)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SaveResult(result); err != nil {
		return err
	}
	log.Info("Scan result saved", log.String("path", resultdb.Path(cfg.CacheDir)))

	report.Write(os.Stdout, result)
	return nil
}

// runCorrelation performs the pure part of a scan: all advisory data is
// collected first, then the classification runs with no further I/O.
func runCorrelation(ctx context.Context, client *msrc.Client, b types.Baseline, inv types.InventorySnapshot) (types.CorrelationResult, error) {
	builder := correlate.NewBuilder()

	months := monthrange.Resolve(b.AnchorMonth, b.LatestMonth)
	if len(months) == 0 || b.ProductName == "" {
		// No correlation basis; surface an explicitly degraded result
		// instead of failing the run.
		return builder.Build(b, inv, months, nil, nil), nil
	}

	log.Info("Querying advisory data", log.Count(len(months)),
		log.Month(string(months[0])), log.String("through", string(months[len(months)-1])))

	monthResults, err := client.FetchMonths(ctx, b.ProductName, months)
	if err != nil {
		return types.CorrelationResult{}, xerrors.Errorf("advisory query failed: %w", err)
	}

	st := store.New()
	var monthsWithData []types.MonthID
	for _, mr := range monthResults {
		st.Add(mr.Records...)
		monthsWithData = append(monthsWithData, mr.Month)
	}
	if st.Dropped() > 0 {
		log.Warn("Dropped unidentifiable advisory records", log.Count(st.Dropped()))
	}

	records := st.Records()
	graph := supersede.New(records)
	entries := correlate.Resolve(records, inv, graph)

	if graph.Cycles() > 0 {
		log.Warn("Supersedence data contained cycles", log.Count(graph.Cycles()))
	}

	return builder.Build(b, inv, months, monthsWithData, entries), nil
}
