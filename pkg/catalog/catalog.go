// Package catalog resolves missing updates against the Microsoft Update
// Catalog: search, candidate scoring against the host baseline, and
// package download.
package catalog

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/xerrors"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/product"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

const resultsTableID = "ctl00_catalogBody_updateMatches"

var (
	guidPattern        = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)
	packageURLPattern  = regexp.MustCompile(`(?i)https?://[^"']+\.(?:msu|cab)(?:\?[^"']*)?`)
	titleBuildPattern  = regexp.MustCompile(`\(\s*(\d{5}\.\d+)`)
	displayVerPattern  = regexp.MustCompile(`\b\d{2}[hH][12]\b`)
)

// Candidate is one row of a catalog search result.
type Candidate struct {
	UpdateID       string
	Title          string
	Products       string
	Classification string
	LastUpdated    string
	Version        string
	Size           string
}

// Constraints are the baseline-derived facts a candidate is matched
// against.
type Constraints struct {
	Generation     string
	DisplayVersion string
	Build          string
	Arch           string
}

// ConstraintsFromBaseline derives catalog matching constraints from the
// host baseline.
func ConstraintsFromBaseline(b types.Baseline) Constraints {
	return Constraints{
		Generation:     product.Generation(b.OSName),
		DisplayVersion: strings.TrimSpace(b.DisplayVersion),
		Build:          strings.TrimSpace(b.Build),
		Arch:           product.NormalizeArch(b.Architecture),
	}
}

// Client talks to the Update Catalog endpoints.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func NewClient(endpoint string, opts ...Option) *Client {
	client := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.WithPrefix("catalog"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Search queries the catalog for an update id and parses the result rows.
func (c *Client) Search(ctx context.Context, id types.KBID) ([]Candidate, error) {
	page, err := c.fetch(ctx, c.endpoint+"/Search.aspx?q="+url.QueryEscape(string(id)))
	if err != nil {
		return nil, xerrors.Errorf("catalog search failed: %w", err)
	}
	return parseCandidates(page)
}

// DownloadURLs resolves the direct package URLs for a chosen candidate.
func (c *Client) DownloadURLs(ctx context.Context, updateID string) ([]string, error) {
	payload := `[{"size":0,"languages":"all","uidInfo":"` + updateID + `","updateID":"` + updateID + `"}]`
	page, err := c.fetch(ctx, c.endpoint+"/DownloadDialog.aspx?updateIDs="+url.QueryEscape(payload))
	if err != nil {
		return nil, xerrors.Errorf("download dialog failed: %w", err)
	}

	seen := map[string]struct{}{}
	var urls []string
	for _, u := range packageURLPattern.FindAllString(page, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls, nil
}

func (c *Client) fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "winshield")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// parseCandidates extracts structured candidates from the search result
// table. Rows without a well-formed update GUID are skipped.
func parseCandidates(page string) ([]Candidate, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, xerrors.Errorf("failed to parse search results: %w", err)
	}

	table := findByAttr(doc, "table", "id", resultsTableID)
	if table == nil {
		return nil, nil
	}

	var candidates []Candidate
	for _, tr := range findAll(table, "tr") {
		rowID := attr(tr, "id")
		if !strings.Contains(rowID, "_R") {
			continue
		}
		updateID := strings.SplitN(rowID, "_R", 2)[0]
		if !guidPattern.MatchString(updateID) {
			continue
		}

		cells := findAll(tr, "td")
		if len(cells) < 8 {
			continue
		}

		candidates = append(candidates, Candidate{
			UpdateID:       updateID,
			Title:          text(cells[1]),
			Products:       text(cells[2]),
			Classification: text(cells[3]),
			LastUpdated:    text(cells[4]),
			Version:        text(cells[5]),
			Size:           text(cells[6]),
		})
	}
	return candidates, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func findByAttr(n *html.Node, tag, key, val string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag && attr(n, key) == val {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByAttr(c, tag, key, val); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
