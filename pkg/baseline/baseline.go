// Package baseline collects the host identity snapshot a correlation
// run is anchored to.
package baseline

import (
	"context"
	_ "embed"
	"time"

	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/product"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/pshell"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

//go:embed probe.ps1
var probeScript string

// payload is the raw JSON shape emitted by the probe script.
type payload struct {
	OsName         string `json:"OsName"`
	DisplayVersion string `json:"DisplayVersion"`
	Build          string `json:"Build"`
	Architecture   string `json:"Architecture"`
	IsAdmin        bool   `json:"IsAdmin"`
	LcuInstalledOn string `json:"LcuInstalledOn"`
}

// Collector probes the host for its OS identity, architecture and
// cumulative-update anchor, and resolves the advisory product name.
type Collector struct {
	runner   *pshell.Runner
	resolver *product.Resolver
	logger   *log.Logger
}

func NewCollector(runner *pshell.Runner, resolver *product.Resolver) *Collector {
	return &Collector{
		runner:   runner,
		resolver: resolver,
		logger:   log.WithPrefix("baseline"),
	}
}

// Collect gathers the baseline. Individual fields degrade to empty when
// the underlying probe data is absent; only total probe failure is an
// error.
func (c *Collector) Collect(ctx context.Context) (types.Baseline, error) {
	var p payload
	if err := c.runner.RunJSON(ctx, probeScript, &p); err != nil {
		return types.Baseline{}, xerrors.Errorf("baseline probe failed: %w", err)
	}

	b := types.Baseline{
		OSName:         p.OsName,
		DisplayVersion: p.DisplayVersion,
		Build:          p.Build,
		Architecture:   product.NormalizeArch(p.Architecture),
		IsAdmin:        p.IsAdmin,
	}

	if name, err := c.resolver.Resolve(p.OsName, p.DisplayVersion, p.Architecture); err != nil {
		c.logger.Warn("Could not resolve advisory product name", log.Err(err))
	} else {
		b.ProductName = name
	}

	if p.LcuInstalledOn != "" {
		if t, err := time.Parse("2006-01-02", p.LcuInstalledOn); err != nil {
			c.logger.Warn("Malformed cumulative-update install date", log.String("value", p.LcuInstalledOn))
		} else {
			b.AnchorMonth = types.MonthIDFromTime(t)
		}
	}

	return b, nil
}
