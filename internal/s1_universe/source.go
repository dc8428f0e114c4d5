package s1_universe

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// Input file locations under the input directory
const (
	BaselineFile = "universe/universe.json"
	EventsFile   = "universe/events.ndjson"
)

type baselineDoc struct {
	Symbols []string `json:"symbols"`
}

// LoadBaseline reads the static baseline universe. A missing file is fatal.
func LoadBaseline(inputDir string) ([]string, error) {
	path := filepath.Join(inputDir, filepath.FromSlash(BaselineFile))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, contracts.NewFatal(contracts.FatalUniverseMissing, nil, "universe file not found at %s", path)
		}
		return nil, contracts.NewFatal(contracts.FatalUniverseMissing, err, "read universe file")
	}

	var doc baselineDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, contracts.NewFatal(contracts.FatalUniverseMissing, err, "decode universe file %s", path)
	}

	seen := make(map[string]bool, len(doc.Symbols))
	out := make([]string, 0, len(doc.Symbols))
	for _, s := range doc.Symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// EventLog is the parsed append-only universe event log
type EventLog struct {
	Found    bool
	Events   []contracts.UniverseEvent // file order
	Warnings []string
}

// LoadEvents reads universe/events.ndjson. Malformed lines are skipped with a warning.
func LoadEvents(inputDir string) (*EventLog, error) {
	log := &EventLog{}
	data, err := os.ReadFile(filepath.Join(inputDir, filepath.FromSlash(EventsFile)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return log, nil
		}
		return nil, fmt.Errorf("read universe events: %w", err)
	}
	log.Found = true

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var ev contracts.UniverseEvent
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			log.Warnings = append(log.Warnings, fmt.Sprintf("UNIVERSE_EVENT_MALFORMED line=%d", line))
			continue
		}
		switch ev.Action {
		case contracts.UniverseAdd, contracts.UniverseRemove, contracts.UniverseDelist:
		default:
			log.Warnings = append(log.Warnings, fmt.Sprintf("UNIVERSE_EVENT_UNKNOWN_ACTION line=%d action=%q", line, ev.Action))
			continue
		}
		if ev.Symbol == "" || len(ev.Date) != len(contracts.DateLayout) {
			log.Warnings = append(log.Warnings, fmt.Sprintf("UNIVERSE_EVENT_INCOMPLETE line=%d", line))
			continue
		}
		log.Events = append(log.Events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan universe events: %w", err)
	}
	return log, nil
}
