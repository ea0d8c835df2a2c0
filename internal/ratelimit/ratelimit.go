// Package ratelimit gates operations that must not run more often than a
// configured interval. Last-run timestamps are persisted, so restarting the
// process does not reset a cooldown.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const gateFileName = "ratelimits.json"

// Gate runs named operations at most once per minimum interval. Each name
// has its own independent cooldown.
type Gate struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewGate returns a Gate persisting timestamps to dir/ratelimits.json.
func NewGate(dir string) *Gate {
	return &Gate{
		path: filepath.Join(dir, gateFileName),
		now:  time.Now,
	}
}

// Do runs fn if at least minInterval has elapsed since the last time the
// named operation ran. It returns whether fn ran, and fn's error when it
// did. A run is recorded even when fn fails, so a failing operation is
// still rate limited.
func (g *Gate) Do(name string, minInterval time.Duration, fn func() error) (bool, error) {
	g.mu.Lock()
	stamps, err := g.load()
	if err != nil {
		g.mu.Unlock()
		return false, err
	}

	if last, ok := stamps[name]; ok {
		if g.now().Sub(last) < minInterval {
			g.mu.Unlock()
			return false, nil
		}
	}

	stamps[name] = g.now()
	if err := g.save(stamps); err != nil {
		g.mu.Unlock()
		return false, err
	}
	g.mu.Unlock()

	return true, fn()
}

func (g *Gate) load() (map[string]time.Time, error) {
	data, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading rate-limit file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing rate-limit file %s: %w", g.path, err)
	}
	stamps := make(map[string]time.Time, len(raw))
	for name, ts := range raw {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			// A bad timestamp means the cooldown is unknown; treat the
			// operation as never run.
			continue
		}
		stamps[name] = parsed
	}
	return stamps, nil
}

func (g *Gate) save(stamps map[string]time.Time) error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("creating rate-limit directory: %w", err)
	}
	raw := make(map[string]string, len(stamps))
	for name, ts := range stamps {
		raw[name] = ts.UTC().Format(time.RFC3339)
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling rate-limit file: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0644); err != nil {
		return fmt.Errorf("writing rate-limit file: %w", err)
	}
	return nil
}
