package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/inventory"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/pshell"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

func TestCollect(t *testing.T) {
	probeOutput := []byte(`{
		"InstalledKbs": ["KB5039212", "kb5037771", "5036893", "KB5039212", "garbage"],
		"Elevated": true
	}`)

	collector := inventory.NewCollector(pshell.NewStubRunner(probeOutput, nil))

	snap, err := collector.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.InventorySnapshot{
		KBs:      []types.KBID{"KB5036893", "KB5037771", "KB5039212"},
		Elevated: true,
	}, snap, "ids are normalized, deduplicated and sorted; unparseable ids dropped")
}

func TestCollectEmpty(t *testing.T) {
	collector := inventory.NewCollector(pshell.NewStubRunner([]byte(`{"InstalledKbs": [], "Elevated": false}`), nil))

	snap, err := collector.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.KBs)
	assert.False(t, snap.Elevated)
}

func TestCollectProbeFailure(t *testing.T) {
	collector := inventory.NewCollector(pshell.NewStubRunner(nil, xerrors.New("access denied")))

	_, err := collector.Collect(context.Background())
	assert.ErrorContains(t, err, "inventory probe failed")
}
