package types

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/xerrors"
)

// KBID is the canonical identifier of one Windows update package,
// always of the form "KB" followed by digits.
type KBID string

// MonthID identifies one advisory publication cycle in the canonical
// "YYYY-Mon" form, e.g. "2024-Jun".
type MonthID string

const monthLayout = "2006-Jan"

var kbPattern = regexp.MustCompile(`^KB\s*([0-9]{4,8})$`)

// ParseKBID normalizes a raw update identifier to canonical form.
// Bare digit strings are accepted and prefixed.
func ParseKBID(raw string) (KBID, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", xerrors.New("empty update identifier")
	}
	if !strings.HasPrefix(s, "KB") {
		s = "KB" + s
	}
	m := kbPattern.FindStringSubmatch(s)
	if m == nil {
		return "", xerrors.Errorf("malformed update identifier: %q", raw)
	}
	return KBID("KB" + m[1]), nil
}

// ParseMonthID normalizes a raw advisory cycle identifier to canonical form.
func ParseMonthID(raw string) (MonthID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", xerrors.New("empty month identifier")
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) == 2 && parts[1] != "" {
		mon := strings.ToLower(parts[1])
		s = parts[0] + "-" + strings.ToUpper(mon[:1]) + mon[1:]
	}
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return "", xerrors.Errorf("malformed month identifier %q: %w", raw, err)
	}
	return MonthID(t.Format(monthLayout)), nil
}

// MonthIDFromTime returns the canonical MonthID of the month containing t.
func MonthIDFromTime(t time.Time) MonthID {
	return MonthID(t.UTC().Format(monthLayout))
}

// Time returns the first day of the month, UTC. The zero time is
// returned for a malformed MonthID.
func (m MonthID) Time() time.Time {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// Before reports whether m is chronologically earlier than other.
func (m MonthID) Before(other MonthID) bool {
	return m.Time().Before(other.Time())
}

// Next returns the MonthID of the following calendar month.
func (m MonthID) Next() MonthID {
	return MonthIDFromTime(m.Time().AddDate(0, 1, 0))
}

// Status is the correlation classification of one expected update.
type Status int

const (
	StatusUnknown Status = iota
	StatusInstalled
	StatusSuperseded
	StatusMissing
)

var (
	statusNames = []string{
		"Unknown",
		"Installed",
		"Superseded",
		"Missing",
	}
	statusColor = []func(a ...interface{}) string{
		color.New(color.FgWhite).SprintFunc(),
		color.New(color.FgGreen).SprintFunc(),
		color.New(color.FgYellow).SprintFunc(),
		color.New(color.FgHiRed).SprintFunc(),
	}
)

func NewStatus(status string) (Status, error) {
	for i, name := range statusNames {
		if status == name {
			return Status(i), nil
		}
	}
	return StatusUnknown, xerrors.Errorf("unknown status: %s", status)
}

func (s Status) String() string {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}
	return statusNames[s]
}

// Colorized returns the status name wrapped in its terminal color.
func (s Status) Colorized() string {
	if int(s) < 0 || int(s) >= len(statusColor) {
		return s.String()
	}
	return statusColor[s](s.String())
}

// Statuses serialize by name so the persisted result stays readable.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	status, err := NewStatus(name)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// RawRecord is one unnormalized per-update advisory fragment as returned
// by an advisory data source for a single month.
type RawRecord struct {
	KB         string
	Month      string
	CVEs       []string
	Supersedes []string
}

// UpdateRecord is the aggregated advisory knowledge about one update
// across every queried month. All fields are sorted and deduplicated.
type UpdateRecord struct {
	ID         KBID      `json:"KB"`
	Months     []MonthID `json:"Months"`
	CVEs       []string  `json:"Cves"`
	Supersedes []KBID    `json:"Supersedes"`
}

// UpdateType labels a record by whether it replaces older updates.
func (r UpdateRecord) UpdateType() string {
	if len(r.Supersedes) > 0 {
		return "Superseding"
	}
	return "Standalone"
}

// Baseline is the host identity snapshot a correlation run is anchored to.
// Any field may be empty when the underlying probe failed.
type Baseline struct {
	OSName         string  `json:"OsName"`
	DisplayVersion string  `json:"DisplayVersion"`
	Build          string  `json:"Build"`
	Architecture   string  `json:"Architecture"`
	IsAdmin        bool    `json:"IsAdmin"`
	ProductName    string  `json:"ProductName"`
	AnchorMonth    MonthID `json:"AnchorMonth,omitempty"`
	LatestMonth    MonthID `json:"LatestMonth,omitempty"`
}

// InventorySnapshot is the set of installed updates on the host.
type InventorySnapshot struct {
	KBs      []KBID `json:"InstalledKbs"`
	Elevated bool   `json:"Elevated"`
}

// Contains reports whether id is in the installed set.
func (s InventorySnapshot) Contains(id KBID) bool {
	for _, kb := range s.KBs {
		if kb == id {
			return true
		}
	}
	return false
}

// CorrelationEntry is the classification of one expected update.
type CorrelationEntry struct {
	ID           KBID      `json:"KB"`
	Status       Status    `json:"Status"`
	UpdateType   string    `json:"UpdateType"`
	Months       []MonthID `json:"Months"`
	CVEs         []string  `json:"Cves,omitempty"`
	SupersededBy []KBID    `json:"SupersededBy,omitempty"`
}

// Summary holds the per-status totals of a correlation run.
type Summary struct {
	Expected   int `json:"Expected"`
	Installed  int `json:"Installed"`
	Superseded int `json:"Superseded"`
	Missing    int `json:"Missing"`
}

// CorrelationResult is the persisted unit of one correlation run. It is
// fully determined by the baseline, inventory and aggregated records that
// produced it.
type CorrelationResult struct {
	Baseline        Baseline           `json:"Baseline"`
	Inventory       InventorySnapshot  `json:"Inventory"`
	MonthsRequested []MonthID          `json:"MonthsRequested"`
	MonthsWithData  []MonthID          `json:"MonthsWithData"`
	Entries         []CorrelationEntry `json:"Entries"`
	Summary         Summary            `json:"Summary"`
	MissingCVEs     []string           `json:"MissingCves,omitempty"`
	Degraded        bool               `json:"Degraded,omitempty"`
	DegradedReason  string             `json:"DegradedReason,omitempty"`
	GeneratedAt     time.Time          `json:"GeneratedAt"`
}

// MissingEntries returns the entries classified as Missing, in order.
func (r CorrelationResult) MissingEntries() []CorrelationEntry {
	var out []CorrelationEntry
	for _, e := range r.Entries {
		if e.Status == StatusMissing {
			out = append(out, e)
		}
	}
	return out
}
