package catalog

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
	pb "gopkg.in/cheggaaa/pb.v1"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
)

// Quiet suppresses the download progress bar, mainly under test.
var Quiet bool

// Download streams a resolved package URL into dir and returns the
// written path.
func (c *Client) Download(ctx context.Context, rawURL, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("failed to create download dir: %w", err)
	}

	name := strings.SplitN(filepath.Base(rawURL), "?", 2)[0]
	outPath := filepath.Join(dir, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "winshield")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Errorf("package download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("unexpected status: %s", resp.Status)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return "", xerrors.Errorf("failed to create %s: %w", outPath, err)
	}
	defer f.Close()

	var reader io.Reader = resp.Body
	if !Quiet && resp.ContentLength > 0 {
		bar := pb.New64(resp.ContentLength).SetUnits(pb.U_BYTES)
		bar.Start()
		defer bar.Finish()
		reader = bar.NewProxyReader(resp.Body)
	}

	written, err := io.Copy(f, reader)
	if err != nil {
		return "", xerrors.Errorf("failed to write %s: %w", outPath, err)
	}

	c.logger.Info("Downloaded package", log.String("path", outPath), log.String("size", pb.Format(written).To(pb.U_BYTES).String()))
	return outPath, nil
}
