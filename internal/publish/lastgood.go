package publish

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"time"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// ReasonPublished is the reason recorded on a successful pointer update
const ReasonPublished = "PUBLISHED"

// LastGoodFile is the pointer document under the state root
const LastGoodFile = "last_good.json"

// LastGoodStore reads and updates the last-good pointer.
// Only a fully successful publish moves current_last_good.
type LastGoodStore struct {
	path       string
	windowDays int
}

// NewLastGoodStore creates a store; windowDays bounds the rollback statistics
func NewLastGoodStore(stateRoot string, windowDays int) *LastGoodStore {
	return &LastGoodStore{
		path:       filepath.Join(stateRoot, LastGoodFile),
		windowDays: windowDays,
	}
}

// Path returns the pointer file path
func (s *LastGoodStore) Path() string {
	return s.path
}

// Load returns the pointer; an empty pointer when none exists yet
func (s *LastGoodStore) Load() (*contracts.LastGoodPointer, error) {
	var p contracts.LastGoodPointer
	if err := atomicio.ReadJSON(s.path, &p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &contracts.LastGoodPointer{
				History: []contracts.LastGoodHistoryEntry{},
				Stats:   contracts.RollbackStats{WindowDays: s.windowDays},
			}, nil
		}
		return nil, fmt.Errorf("load last-good pointer: %w", err)
	}
	if p.History == nil {
		p.History = []contracts.LastGoodHistoryEntry{}
	}
	return &p, nil
}

// Set moves the pointer to date after a successful publish
func (s *LastGoodStore) Set(date, artifactsHash string, now time.Time) (*contracts.LastGoodPointer, error) {
	p, err := s.Load()
	if err != nil {
		return nil, err
	}

	replaced := ""
	if p.CurrentLastGood != nil {
		replaced = p.CurrentLastGood.Date
	}
	setAt := now.UTC().Format(time.RFC3339)
	p.CurrentLastGood = &contracts.LastGoodEntry{
		Date:          date,
		ArtifactsHash: artifactsHash,
		SetAt:         setAt,
		Reason:        ReasonPublished,
		ReplacedDate:  replaced,
	}
	p.History = append(p.History, contracts.LastGoodHistoryEntry{
		Kind:          contracts.LastGoodSet,
		Date:          date,
		ArtifactsHash: artifactsHash,
		SetAt:         setAt,
		Reason:        ReasonPublished,
		ReplacedDate:  replaced,
	})
	return p, s.save(p, date)
}

// RecordRollback appends a degrade event; current_last_good is left untouched.
// lastGoodDateUsed is empty when the empty degraded bundle was published.
func (s *LastGoodStore) RecordRollback(date, lastGoodDateUsed, reason string, now time.Time) (*contracts.LastGoodPointer, error) {
	p, err := s.Load()
	if err != nil {
		return nil, err
	}
	p.History = append(p.History, contracts.LastGoodHistoryEntry{
		Kind:             contracts.LastGoodRollback,
		Date:             date,
		SetAt:            now.UTC().Format(time.RFC3339),
		Reason:           reason,
		LastGoodDateUsed: lastGoodDateUsed,
	})
	return p, s.save(p, date)
}

func (s *LastGoodStore) save(p *contracts.LastGoodPointer, asof string) error {
	stats, err := ComputeStats(p.History, asof, s.windowDays)
	if err != nil {
		return err
	}
	p.Stats = stats
	return atomicio.WriteJSON(s.path, p)
}

// ComputeStats recomputes rollback statistics from history.
// An episode starts at the first rollback after a set and ends at the next set;
// its duration is the number of distinct degraded dates. Episodes count when they
// start within the trailing window ending at asof.
func ComputeStats(history []contracts.LastGoodHistoryEntry, asof string, windowDays int) (contracts.RollbackStats, error) {
	stats := contracts.RollbackStats{WindowDays: windowDays}
	end, err := time.Parse(contracts.DateLayout, asof)
	if err != nil {
		return stats, fmt.Errorf("rollback stats asof %q: %w", asof, err)
	}
	cutoff := end.AddDate(0, 0, -windowDays)

	type episode struct {
		start time.Time
		dates map[string]bool
	}
	var episodes []*episode
	var open *episode
	for _, h := range history {
		switch h.Kind {
		case contracts.LastGoodSet:
			open = nil
		case contracts.LastGoodRollback:
			d, err := time.Parse(contracts.DateLayout, h.Date)
			if err != nil {
				return stats, fmt.Errorf("rollback history date %q: %w", h.Date, err)
			}
			if open == nil {
				open = &episode{start: d, dates: map[string]bool{}}
				episodes = append(episodes, open)
			}
			open.dates[h.Date] = true
		}
	}

	total := 0
	for _, e := range episodes {
		if !e.start.After(cutoff) || e.start.After(end) {
			continue
		}
		n := len(e.dates)
		stats.RollbackCount++
		total += n
		if n > stats.LongestRollbackDays {
			stats.LongestRollbackDays = n
		}
	}
	if stats.RollbackCount > 0 {
		avg := float64(total) / float64(stats.RollbackCount)
		stats.AvgRollbackDays = math.Round(avg*10000) / 10000
	}
	return stats, nil
}
