package publish

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
)

// Degrade warnings recorded in the diagnostics summary
const (
	WarningNoLastGood      = "LAST_GOOD_MISSING"
	WarningLastGoodTooOld  = "LAST_GOOD_TOO_OLD"
	WarningLastGoodMissing = "LAST_GOOD_BUNDLE_UNREADABLE"
	WarningNoPriorLastGood = "LAST_GOOD_NONE_ON_OR_BEFORE_ASOF"
)

// RepublishSource is the last-good bundle chosen for a degraded run
type RepublishSource struct {
	Date          string
	ArtifactsHash string
	Docs          map[string][]byte
}

// SameDate reports whether the source is the bundle already published for asof
func (s *RepublishSource) SameDate(asof string) bool {
	return s != nil && s.Date == asof
}

// Degrader picks what a failed run serves instead of fresh output
type Degrader struct {
	publisher  *Publisher
	store      *LastGoodStore
	maxAgeDays int
	log        zerolog.Logger
}

// NewDegrader creates a degrader
func NewDegrader(publisher *Publisher, store *LastGoodStore, maxAgeDays int, log zerolog.Logger) *Degrader {
	return &Degrader{
		publisher:  publisher,
		store:      store,
		maxAgeDays: maxAgeDays,
		log:        log.With().Str("component", "publish.degrader").Logger(),
	}
}

// Resolve returns the last-good bundle to republish, or nil when the empty
// degraded bundle must be published instead. Warnings explain a nil result.
func (d *Degrader) Resolve(asof string) (*RepublishSource, []string, error) {
	ptr, err := d.store.Load()
	if err != nil {
		return nil, nil, err
	}
	if ptr.CurrentLastGood == nil {
		return nil, []string{WarningNoLastGood}, nil
	}

	// 백필 시 asof 이후 날짜의 번들은 절대 사용하지 않음 (look-ahead 금지)
	lg := latestSetOnOrBefore(ptr.History, asof)
	if lg == nil {
		w := fmt.Sprintf("%s asof=%s current=%s", WarningNoPriorLastGood, asof, ptr.CurrentLastGood.Date)
		d.log.Warn().Str("asof", asof).Str("current", ptr.CurrentLastGood.Date).Msg("no last-good bundle on or before asof")
		return nil, []string{w}, nil
	}

	age, err := calendarDays(lg.Date, asof)
	if err != nil {
		return nil, nil, err
	}
	if age > d.maxAgeDays {
		w := fmt.Sprintf("%s date=%s age_days=%d max=%d", WarningLastGoodTooOld, lg.Date, age, d.maxAgeDays)
		d.log.Warn().Str("last_good", lg.Date).Int("age_days", age).Msg("last-good bundle too old")
		return nil, []string{w}, nil
	}

	docs, err := d.publisher.Read(lg.Date)
	if err == nil {
		var hash string
		if hash, err = ArtifactsHash(docs); err == nil && hash != lg.ArtifactsHash {
			err = fmt.Errorf("artifacts hash %s, pointer recorded %s", hash, lg.ArtifactsHash)
		}
	}
	if err != nil {
		w := fmt.Sprintf("%s date=%s", WarningLastGoodMissing, lg.Date)
		d.log.Warn().Err(err).Str("last_good", lg.Date).Msg("last-good bundle unreadable")
		return nil, []string{w}, nil
	}
	return &RepublishSource{Date: lg.Date, ArtifactsHash: lg.ArtifactsHash, Docs: docs}, nil, nil
}

// latestSetOnOrBefore returns the newest successful publish dated <= asof.
// A later entry for the same date wins: it replaced the directory.
func latestSetOnOrBefore(history []contracts.LastGoodHistoryEntry, asof string) *contracts.LastGoodHistoryEntry {
	var best *contracts.LastGoodHistoryEntry
	for i := range history {
		h := &history[i]
		if h.Kind != contracts.LastGoodSet || h.Date > asof {
			continue
		}
		if best == nil || h.Date >= best.Date {
			best = h
		}
	}
	return best
}

// BuildDegraded renders the degraded bundle. With a source, its five payload
// documents are kept verbatim and only meta is rewritten; the diagnostics summary
// is always fresh. Without one, explicitly empty payloads are published.
func BuildDegraded(meta contracts.BundleMeta, src *RepublishSource, card *contracts.ModelCard, diag *contracts.DiagnosticsSummary) (*contracts.Bundle, error) {
	meta.CircuitOpen = true
	if src == nil {
		meta.LastGoodDateUsed = nil
		return Assemble(meta, EmptyContents(card, diag))
	}

	date := src.Date
	meta.LastGoodDateUsed = &date
	b := &contracts.Bundle{AsOfDate: meta.AsOfDate, Docs: make(map[string][]byte, 6)}
	for name := range payloadKey {
		doc, ok := src.Docs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrBundleIncomplete, src.Date, name)
		}
		data, err := Rewrap(doc, meta)
		if err != nil {
			return nil, fmt.Errorf("rewrap %s/%s: %w", src.Date, name, err)
		}
		b.Docs[name] = data
	}

	fresh := *diag
	fresh.Meta = meta
	data, err := render(fresh)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", contracts.FileDiagnosticsSummary, err)
	}
	b.Docs[contracts.FileDiagnosticsSummary] = data
	return b, nil
}

func calendarDays(from, to string) (int, error) {
	a, err := time.Parse(contracts.DateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", from, err)
	}
	b, err := time.Parse(contracts.DateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("parse date %q: %w", to, err)
	}
	return int(b.Sub(a).Hours() / 24), nil
}
