// Package ephemeris serves sun ephemeris data for the observatory from
// a pre-computed table, keyed by the sidereal-adjusted Julian day.
package ephemeris

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds ephemeris table settings.
type Config struct {
	// Path is the JSON table produced by the external ephemeris job.
	Path string `yaml:"path"`

	// CacheTTL is how long the loaded table is kept before re-reading
	// the file. Zero defaults to one hour.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Julian day of the Unix epoch.
const unixEpochJD = 2440587.5

// JD returns the Julian day for a time.
func JD(t time.Time) float64 {
	return float64(t.UnixMilli())/86400000 + unixEpochJD
}

// MJD returns the modified Julian day for a time.
func MJD(t time.Time) float64 {
	return JD(t) - 2400000.5
}

// SJD returns the observing day number. The 0.4 day offset rolls the
// day over in the local afternoon rather than at midnight UTC.
func SJD(t time.Time) int64 {
	return int64(math.Floor(MJD(t) + 0.4))
}

// Entry is one row of the ephemeris table. All instants are Julian
// days.
type Entry struct {
	SJD           int64   `json:"sjd"`
	Date          string  `json:"date"`
	Sunset        float64 `json:"sunset"`
	TwilightEnd   float64 `json:"twilight_end"`
	TwilightStart float64 `json:"twilight_start"`
	Sunrise       float64 `json:"sunrise"`
}

// Summary describes the sun state at a given instant.
type Summary struct {
	Entry

	RequestJD     float64       `json:"request_jd"`
	IsNight       bool          `json:"is_night"`
	IsTwilight    bool          `json:"is_twilight"`
	TimeToSunset  time.Duration `json:"time_to_sunset"`
	TimeToSunrise time.Duration `json:"time_to_sunrise"`
}

// Table is a TTL-cached view over the ephemeris file.
type Table struct {
	path string
	ttl  time.Duration

	mu       sync.Mutex
	entries  map[int64]Entry
	loadedAt time.Time

	now func() time.Time
}

// NewTable creates a table over the configured file.
func NewTable(cfg Config) *Table {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Table{path: cfg.Path, ttl: ttl, now: time.Now}
}

// Entry returns the row for an observing day.
func (t *Table) Entry(sjd int64) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.loadLocked(); err != nil {
		return Entry{}, err
	}

	entry, ok := t.entries[sjd]
	if !ok {
		return Entry{}, fmt.Errorf("no ephemeris data for SJD %d", sjd)
	}
	return entry, nil
}

// loadLocked re-reads the file when the cache has expired.
func (t *Table) loadLocked() error {
	if t.entries != nil && t.now().Sub(t.loadedAt) < t.ttl {
		return nil
	}

	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("failed to read ephemeris file: %w", err)
	}

	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse ephemeris file: %w", err)
	}

	entries := make(map[int64]Entry, len(raw))
	for key, entry := range raw {
		sjd, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("bad SJD key %q in ephemeris file", key)
		}
		if entry.SJD == 0 {
			entry.SJD = sjd
		}
		entries[sjd] = entry
	}

	t.entries = entries
	t.loadedAt = t.now()
	return nil
}

// jdToDuration converts a Julian day delta to a duration.
func jdToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}

// Summary evaluates the sun state at the given instant.
func (t *Table) Summary(at time.Time) (Summary, error) {
	entry, err := t.Entry(SJD(at))
	if err != nil {
		return Summary{}, err
	}

	jd := JD(at)

	s := Summary{
		Entry:         entry,
		RequestJD:     jd,
		IsNight:       jd >= entry.TwilightEnd && jd < entry.TwilightStart,
		TimeToSunset:  jdToDuration(entry.Sunset - jd),
		TimeToSunrise: jdToDuration(entry.Sunrise - jd),
	}
	s.IsTwilight = (jd >= entry.Sunset && jd < entry.TwilightEnd) ||
		(jd >= entry.TwilightStart && jd < entry.Sunrise)

	return s, nil
}

// IsSunUp reports whether the sun is above the horizon at the given
// instant.
func (t *Table) IsSunUp(at time.Time) (bool, error) {
	entry, err := t.Entry(SJD(at))
	if err != nil {
		return false, err
	}

	jd := JD(at)
	return jd < entry.Sunset || jd >= entry.Sunrise, nil
}
