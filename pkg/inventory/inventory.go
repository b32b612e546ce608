// Package inventory collects the set of updates installed on the host.
package inventory

import (
	"context"
	_ "embed"

	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/pshell"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/set"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

//go:embed probe.ps1
var probeScript string

type payload struct {
	InstalledKbs []string `json:"InstalledKbs"`
	Elevated     bool     `json:"Elevated"`
}

// Collector probes the host for its installed update identifiers.
type Collector struct {
	runner *pshell.Runner
	logger *log.Logger
}

func NewCollector(runner *pshell.Runner) *Collector {
	return &Collector{
		runner: runner,
		logger: log.WithPrefix("inventory"),
	}
}

// Collect returns the installed update set with every identifier in
// canonical form. Identifiers the probe reports in an unparseable shape
// are dropped, not fatal.
func (c *Collector) Collect(ctx context.Context) (types.InventorySnapshot, error) {
	var p payload
	if err := c.runner.RunJSON(ctx, probeScript, &p); err != nil {
		return types.InventorySnapshot{}, xerrors.Errorf("inventory probe failed: %w", err)
	}

	kbs := set.NewOrdered[types.KBID]()
	for _, raw := range p.InstalledKbs {
		id, err := types.ParseKBID(raw)
		if err != nil {
			c.logger.Debug("Dropping unparseable installed update id", log.String("raw", raw))
			continue
		}
		kbs.Append(id)
	}

	return types.InventorySnapshot{
		KBs:      kbs.Values(),
		Elevated: p.Elevated,
	}, nil
}
