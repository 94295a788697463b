package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/maltedev/marketplace-scraper/internal/models"
)

type Mode int

const (
	ModeSearch       Mode = 0
	ModeOffers       Mode = 1
	ModeBatchOffers  Mode = 2
	ModeSearchOffers Mode = 3
	ModeCatalog      Mode = 4
)

var modeNames = map[Mode]string{
	ModeSearch:       "search",
	ModeOffers:       "offers",
	ModeBatchOffers:  "batch-offers",
	ModeSearchOffers: "search-offers",
	ModeCatalog:      "catalog",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode accepts the interactive menu numbers and the mode names.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	if n, err := strconv.Atoi(s); err == nil {
		if m := Mode(n); m.Valid() {
			return m, nil
		}
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}

	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		parsed, err := ParseMode(strconv.Itoa(n))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMode, data)
	}

	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Request describes one run. Input is the search query, a product URL or id,
// or whitespace-separated URLs and ids depending on the mode. Tag prefixes
// the offer file names.
type Request struct {
	Mode  Mode   `json:"mode"`
	Input string `json:"input"`
	Tag   string `json:"tag,omitempty"`
}

type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	Mode       Mode      `json:"mode"`
	Input      string    `json:"input"`
	Files      []string  `json:"files"`
	Cards      int       `json:"cards"`
	Lookups    int       `json:"lookups"`
	Offers     int       `json:"offers"`
	NoSellers  []string  `json:"no_sellers,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run executes one request against the session. The report is returned even
// when the run fails part way, listing what was written before the failure.
func (m *Marketplace) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		Mode:      req.Mode,
		Input:     req.Input,
		Files:     []string{},
		StartedAt: m.now(),
	}
	defer func() { report.FinishedAt = m.now() }()

	if !req.Mode.Valid() {
		return report, fmt.Errorf("%w: %d", ErrInvalidMode, int(req.Mode))
	}

	logger := m.logger.With("run_id", report.RunID, "mode", req.Mode.String())
	logger.Info("run started", "input", req.Input)

	if m.sink != nil {
		if err := m.sink.StartRun(ctx, report.RunID, req.Mode.String(), req.Input); err != nil {
			return report, fmt.Errorf("failed to record run: %w", err)
		}
	}

	var err error
	switch req.Mode {
	case ModeSearch:
		_, err = m.runSearch(ctx, report, req.Input)
	case ModeOffers:
		err = m.runOffers(ctx, report, []string{req.Input}, func(int) string { return req.Tag })
	case ModeBatchOffers:
		err = m.runOffers(ctx, report, strings.Fields(req.Input), batchTag(req.Tag))
	case ModeSearchOffers:
		var result *models.ExtractionResult
		result, err = m.runSearch(ctx, report, req.Input)
		if err == nil {
			if ids := uniqueIDs(result.ProductIDs()); len(ids) > 0 {
				err = m.runOffers(ctx, report, ids, batchTag(req.Tag))
			} else {
				logger.Warn("search returned no products to look up")
			}
		}
	case ModeCatalog:
		err = m.runCatalog(ctx, report, req.Input)
	}

	if err != nil {
		logger.Error("run failed", "error", err, "files", len(report.Files))
		return report, err
	}

	logger.Info("run finished",
		"files", len(report.Files),
		"cards", report.Cards,
		"lookups", report.Lookups,
		"offers", report.Offers)
	return report, nil
}

func (m *Marketplace) runSearch(ctx context.Context, report *Report, query string) (*models.ExtractionResult, error) {
	result, err := m.SearchCards(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := m.exportCards(ctx, report, result, strings.TrimSpace(query)); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *Marketplace) runCatalog(ctx context.Context, report *Report, pageURL string) error {
	pageURL = strings.TrimSpace(pageURL)

	result, err := m.CatalogCards(ctx, pageURL)
	if err != nil {
		return err
	}

	return m.exportCards(ctx, report, result, "catalog")
}

func (m *Marketplace) exportCards(ctx context.Context, report *Report, result *models.ExtractionResult, name string) error {
	files, err := m.exporter.WriteCards(result, name, m.opts.WriteJSON)
	report.Files = append(report.Files, files...)
	if err != nil {
		return fmt.Errorf("failed to export cards: %w", err)
	}
	report.Cards += result.TotalItems()

	if m.sink != nil {
		if err := m.sink.SaveCards(ctx, report.RunID, name, result); err != nil {
			return fmt.Errorf("failed to persist cards: %w", err)
		}
	}
	return nil
}

// runOffers looks the inputs up one after another, paced by the pacer.
// The first failed lookup ends the run.
func (m *Marketplace) runOffers(ctx context.Context, report *Report, inputs []string, tagFor func(int) string) error {
	if len(inputs) == 0 || (len(inputs) == 1 && strings.TrimSpace(inputs[0]) == "") {
		return fmt.Errorf("%w: product url or id", ErrEmptyInput)
	}

	minDelay, maxDelay := m.pacer.Delay()
	m.logger.Info("pacing offer lookups", "lookups", len(inputs), "min_delay", minDelay, "max_delay", maxDelay)

	for i, input := range inputs {
		if err := m.pacer.Wait(ctx); err != nil {
			return err
		}

		m.logger.Info("looking up cheaper offers", "input", input, "index", i, "total", len(inputs))

		lookup, err := m.CheaperOffers(ctx, input)
		if err != nil {
			m.pacer.RecordError()
			minDelay, maxDelay = m.pacer.Delay()
			m.logger.Warn("offer lookup failed", "input", input, "min_delay", minDelay, "max_delay", maxDelay, "error", err)
			return err
		}
		m.pacer.RecordSuccess()
		report.Lookups++

		if !lookup.HasSellers {
			report.NoSellers = append(report.NoSellers, lookup.ProductID)
			continue
		}

		path, err := m.exporter.WriteOffers(lookup.Offers, tagFor(i), m.now())
		if err != nil {
			return fmt.Errorf("failed to export offers for %s: %w", lookup.ProductID, err)
		}
		report.Files = append(report.Files, path)
		report.Offers += len(lookup.Offers)

		if m.sink != nil {
			if err := m.sink.SaveOffers(ctx, report.RunID, lookup.ProductID, lookup.Offers); err != nil {
				return fmt.Errorf("failed to persist offers: %w", err)
			}
		}
	}

	return nil
}

// batchTag numbers the offer files of a batch from 0, after prefix when one
// is given.
func batchTag(prefix string) func(int) string {
	return func(i int) string {
		if prefix == "" {
			return strconv.Itoa(i)
		}
		return prefix + "_" + strconv.Itoa(i)
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
