package msrc_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/msrc"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

const productName = "Windows 11 Version 23H2 for x64-based Systems"

const juneDoc = `{
  "ProductTree": {
    "FullProductName": [
      {"ProductID": "12243", "Value": "Windows 11 Version 23H2 for x64-based Systems"},
      {"ProductID": "12244", "Value": "Windows 11 Version 23H2 for ARM64-based Systems"}
    ]
  },
  "Vulnerability": [
    {
      "CVE": "CVE-2024-30080",
      "Remediations": [
        {
          "Type": 2,
          "Description": {"Value": "5039212"},
          "ProductID": ["12243"],
          "Supercedence": "5037771"
        },
        {
          "Type": 2,
          "Description": {"Value": "5039213"},
          "ProductID": ["12244"],
          "Supercedence": ""
        }
      ]
    },
    {
      "CVE": "CVE-2024-30099",
      "Remediations": [
        {
          "Type": 2,
          "Description": {"Value": "5039212"},
          "ProductID": ["12243"],
          "Supercedence": "5037771,5036893"
        },
        {
          "Type": 0,
          "Description": {"Value": "Known Issue"},
          "ProductID": ["12243"]
        }
      ]
    }
  ]
}`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/updates", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value": [
			{"ID": "2024-Apr"},
			{"ID": "2024-Jun"},
			{"ID": "2024-May"}
		]}`))
	})
	mux.HandleFunc("/cvrf/2024-Jun", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Write([]byte(juneDoc))
	})
	mux.HandleFunc("/cvrf/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return httptest.NewServer(mux)
}

func TestLatestMonth(t *testing.T) {
	ts := newServer(t)
	defer ts.Close()

	client := msrc.NewClient(ts.URL)
	latest, err := client.LatestMonth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.MonthID("2024-Jun"), latest)
}

func TestFetchMonths(t *testing.T) {
	ts := newServer(t)
	defer ts.Close()

	client := msrc.NewClient(ts.URL, msrc.WithConcurrency(2))

	// 2024-May 404s and must contribute nothing without failing the run.
	results, err := client.FetchMonths(context.Background(), productName, []types.MonthID{"2024-May", "2024-Jun"})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, types.MonthID("2024-Jun"), results[0].Month)
	assert.Equal(t, []types.RawRecord{
		{
			KB:         "5039212",
			Month:      "2024-Jun",
			CVEs:       []string{"CVE-2024-30080"},
			Supersedes: []string{"5037771"},
		},
		{
			KB:         "5039212",
			Month:      "2024-Jun",
			CVEs:       []string{"CVE-2024-30099"},
			Supersedes: []string{"5037771", "5036893"},
		},
	}, results[0].Records)
}

func TestFetchMonthsUnknownProduct(t *testing.T) {
	ts := newServer(t)
	defer ts.Close()

	client := msrc.NewClient(ts.URL)

	results, err := client.FetchMonths(context.Background(), "Windows 10 Version 22H2 for x64-based Systems", []types.MonthID{"2024-Jun"})
	require.NoError(t, err)
	assert.Empty(t, results, "a month with no data for the product is an empty contribution")
}

func TestFetchMonthsServerDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := msrc.NewClient(ts.URL)

	// Acquisition failure for a month is recovered locally, never fatal.
	results, err := client.FetchMonths(context.Background(), productName, []types.MonthID{"2024-Jun"})
	require.NoError(t, err)
	assert.Empty(t, results)
}
