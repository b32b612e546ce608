// Package msrc fetches Microsoft Security Response Center CVRF
// documents and extracts per-update advisory records for one product.
package msrc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

const (
	// vendorFix is the CVRF remediation type carrying a KB number.
	vendorFix = 2

	maxRetries = 3
)

// cvrfDocument is a minimal struct to parse CVRF JSON.
type cvrfDocument struct {
	ProductTree struct {
		FullProductName []struct {
			ProductID string `json:"ProductID"`
			Value     string `json:"Value"`
		} `json:"FullProductName"`
	} `json:"ProductTree"`
	Vulnerability []struct {
		CVE          string `json:"CVE"`
		Remediations []struct {
			Type        int `json:"Type"`
			Description struct {
				Value string `json:"Value"`
			} `json:"Description"`
			ProductID    []string `json:"ProductID"`
			Supercedence string   `json:"Supercedence"`
		} `json:"Remediations"`
	} `json:"Vulnerability"`
}

type updateList struct {
	Value []struct {
		ID                 string    `json:"ID"`
		CurrentReleaseDate time.Time `json:"CurrentReleaseDate"`
	} `json:"value"`
}

// MonthResult is one month's contribution of raw records.
type MonthResult struct {
	Month   types.MonthID
	Records []types.RawRecord
}

// Client queries the MSRC CVRF endpoint.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	concurrency int
	logger      *log.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func WithConcurrency(n int) Option {
	return func(client *Client) {
		client.concurrency = n
	}
}

func NewClient(endpoint string, opts ...Option) *Client {
	client := &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		concurrency: 3,
		logger:      log.WithPrefix("msrc"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// LatestMonth returns the most recently published advisory month, or an
// empty MonthID when the update index cannot be reached.
func (c *Client) LatestMonth(ctx context.Context) (types.MonthID, error) {
	body, err := c.get(ctx, c.endpoint+"/updates")
	if err != nil {
		return "", xerrors.Errorf("failed to list advisory months: %w", err)
	}

	var list updateList
	if err := json.Unmarshal(body, &list); err != nil {
		return "", xerrors.Errorf("failed to decode advisory month list: %w", err)
	}

	var latest types.MonthID
	for _, u := range list.Value {
		month, err := types.ParseMonthID(u.ID)
		if err != nil {
			continue
		}
		if latest == "" || latest.Before(month) {
			latest = month
		}
	}
	if latest == "" {
		return "", xerrors.New("advisory month list contained no parseable months")
	}
	return latest, nil
}

// FetchMonths retrieves the CVRF documents for the given months
// concurrently and extracts the raw records applicable to productName.
// A month without a published document contributes nothing. The caller
// merges contributions through the record store, whose union merge makes
// arrival order irrelevant.
func (c *Client) FetchMonths(ctx context.Context, productName string, months []types.MonthID) ([]MonthResult, error) {
	results := make([]MonthResult, len(months))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, month := range months {
		i, month := i, month
		g.Go(func() error {
			records, err := c.fetchMonth(ctx, productName, month)
			if err != nil {
				// One unreachable month never aborts the run.
				c.logger.Warn("Skipping advisory month", log.Month(string(month)), log.Err(err))
				return nil
			}
			results[i] = MonthResult{Month: month, Records: records}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, xerrors.Errorf("advisory fetch aborted: %w", err)
	}

	var out []MonthResult
	for _, r := range results {
		if len(r.Records) > 0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Client) fetchMonth(ctx context.Context, productName string, month types.MonthID) ([]types.RawRecord, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/cvrf/%s", c.endpoint, month))
	if err != nil {
		return nil, err
	}
	if body == nil {
		// Not published for this product cycle.
		return nil, nil
	}

	var doc cvrfDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, xerrors.Errorf("failed to decode CVRF document for %s: %w", month, err)
	}

	return extractRecords(doc, productName, month), nil
}

// extractRecords walks the CVRF document and keeps every vendor-fix
// remediation that applies to the given product.
func extractRecords(doc cvrfDocument, productName string, month types.MonthID) []types.RawRecord {
	productIDs := map[string]struct{}{}
	for _, p := range doc.ProductTree.FullProductName {
		if strings.EqualFold(strings.TrimSpace(p.Value), strings.TrimSpace(productName)) {
			productIDs[p.ProductID] = struct{}{}
		}
	}
	if len(productIDs) == 0 {
		return nil
	}

	var records []types.RawRecord
	for _, vuln := range doc.Vulnerability {
		for _, rem := range vuln.Remediations {
			if rem.Type != vendorFix || rem.Description.Value == "" {
				continue
			}
			if !appliesTo(rem.ProductID, productIDs) {
				continue
			}
			records = append(records, types.RawRecord{
				KB:         rem.Description.Value,
				Month:      string(month),
				CVEs:       []string{vuln.CVE},
				Supersedes: splitSupercedence(rem.Supercedence),
			})
		}
	}
	return records
}

func appliesTo(remediationProducts []string, productIDs map[string]struct{}) bool {
	for _, id := range remediationProducts {
		if _, ok := productIDs[id]; ok {
			return true
		}
	}
	return false
}

// splitSupercedence tokenizes the free-form supercedence field, which
// may carry several KB numbers separated by commas or semicolons.
func splitSupercedence(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// get performs one GET with retry on transient failures. A 404 returns
// a nil body and no error.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "winshield")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			body = nil
			return nil
		case resp.StatusCode >= 500:
			return xerrors.Errorf("server error: %s", resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(xerrors.Errorf("unexpected status: %s", resp.Status))
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, xerrors.Errorf("GET %s: %w", url, err)
	}
	return body, nil
}
