// Package resultdb persists correlation results for audit and
// re-display without re-running the probes.
package resultdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
	"k8s.io/utils/clock"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

const (
	SchemaVersion = 1

	rootBucket     = "winshield"
	resultBucket   = "scan-result"
	metadataBucket = "metadata"

	latestKey   = "latest"
	metadataKey = "data"
)

// Metadata describes the stored result.
type Metadata struct {
	SchemaVersion int
	UpdatedAt     time.Time
}

// Client owns the bolt database holding the latest correlation result.
// Only one result is kept: every run is a fresh snapshot with no trend
// history.
type Client struct {
	db    *bolt.DB
	clock clock.PassiveClock
}

type Option func(*Client)

func WithClock(c clock.PassiveClock) Option {
	return func(client *Client) {
		client.clock = c
	}
}

// Path returns the database file location under cacheDir.
func Path(cacheDir string) string {
	return filepath.Join(cacheDir, "db", "winshield.db")
}

// Open opens (creating if needed) the result database under cacheDir.
func Open(cacheDir string, opts ...Option) (*Client, error) {
	dbPath := Path(cacheDir)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, xerrors.Errorf("failed to mkdir: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open db: %w", err)
	}

	client := &Client{
		db:    db,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		return xerrors.Errorf("failed to close db: %w", err)
	}
	return nil
}

// SaveResult stores the result and its metadata in a single
// transaction, so a partial result is never visible as complete.
func (c *Client) SaveResult(result types.CorrelationResult) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		if err := c.put(tx, resultBucket, latestKey, result); err != nil {
			return err
		}
		return c.put(tx, metadataBucket, metadataKey, Metadata{
			SchemaVersion: SchemaVersion,
			UpdatedAt:     c.clock.Now().UTC(),
		})
	})
	if err != nil {
		return xerrors.Errorf("failed to save result: %w", err)
	}
	return nil
}

// LatestResult returns the stored result, or os.ErrNotExist when no run
// has been persisted yet.
func (c *Client) LatestResult() (types.CorrelationResult, error) {
	var result types.CorrelationResult

	value, err := c.get(resultBucket, latestKey)
	if err != nil {
		return types.CorrelationResult{}, err
	}
	if value == nil {
		return types.CorrelationResult{}, xerrors.Errorf("no stored scan result: %w", os.ErrNotExist)
	}

	if err := json.Unmarshal(value, &result); err != nil {
		return types.CorrelationResult{}, xerrors.Errorf("failed to decode stored result: %w", err)
	}
	return result, nil
}

// GetMetadata returns the stored metadata, or os.ErrNotExist.
func (c *Client) GetMetadata() (Metadata, error) {
	value, err := c.get(metadataBucket, metadataKey)
	if err != nil {
		return Metadata{}, err
	}
	if value == nil {
		return Metadata{}, xerrors.Errorf("no stored metadata: %w", os.ErrNotExist)
	}

	var meta Metadata
	if err := json.Unmarshal(value, &meta); err != nil {
		return Metadata{}, xerrors.Errorf("failed to decode metadata: %w", err)
	}
	return meta, nil
}

func (c *Client) put(tx *bolt.Tx, nestedBucket, key string, value any) error {
	root, err := tx.CreateBucketIfNotExists([]byte(rootBucket))
	if err != nil {
		return xerrors.Errorf("failed to create a bucket: %w", err)
	}
	nested, err := root.CreateBucketIfNotExists([]byte(nestedBucket))
	if err != nil {
		return xerrors.Errorf("failed to create a bucket: %w", err)
	}

	v, err := json.Marshal(value)
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}
	return nested.Put([]byte(key), v)
}

func (c *Client) get(nestedBucket, key string) (value []byte, err error) {
	err = c.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return nil
		}
		nested := root.Bucket([]byte(nestedBucket))
		if nested == nil {
			return nil
		}
		// The slice bbolt returns is only valid inside the transaction.
		if v := nested.Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to get data from db: %w", err)
	}
	return value, nil
}
