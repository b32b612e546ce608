package pshell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/pshell"
)

func TestRunJSON(t *testing.T) {
	runner := pshell.NewStubRunner([]byte("  {\"Name\": \"value\"}\r\n"), nil)

	var out struct {
		Name string `json:"Name"`
	}
	require.NoError(t, runner.RunJSON(context.Background(), "probe", &out))
	assert.Equal(t, "value", out.Name)
}

func TestRunJSONEmptyOutput(t *testing.T) {
	runner := pshell.NewStubRunner([]byte("   \n"), nil)

	var out map[string]any
	err := runner.RunJSON(context.Background(), "probe", &out)
	assert.ErrorContains(t, err, "no output")
}

func TestRunJSONInvalidJSON(t *testing.T) {
	runner := pshell.NewStubRunner([]byte("not json"), nil)

	var out map[string]any
	err := runner.RunJSON(context.Background(), "probe", &out)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestRunJSONExecFailure(t *testing.T) {
	runner := pshell.NewStubRunner(nil, xerrors.New("powershell.exe: not found"))

	var out map[string]any
	err := runner.RunJSON(context.Background(), "probe", &out)
	assert.ErrorContains(t, err, "probe execution failed")
}
