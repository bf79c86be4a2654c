package alert

import (
	"log/slog"
	"time"
)

// Extractor is the content-extraction collaborator: it pulls opportunity
// records out of one raw captured payload. Implementations own the
// site-specific heuristics; the normalizer only shapes their output.
type Extractor interface {
	Extract(payload []byte) ([]Alert, error)
}

// Normalizer converts raw captured or snapshot content into Alerts and
// enforces the structural defaults every alert carries.
type Normalizer struct {
	extractors map[string]Extractor // keyed by source
	now        func() time.Time
}

// NewNormalizer wires one extractor per source.
func NewNormalizer(extractors map[string]Extractor) *Normalizer {
	return &Normalizer{
		extractors: extractors,
		now:        time.Now,
	}
}

// Normalize extracts alerts from payload and stamps source, profile and a
// UTC capture time on each. Records without a usable match or profit signal
// are discarded. Extraction failures yield an empty slice, never an error:
// a malformed payload is routine, not exceptional.
func (n *Normalizer) Normalize(payload []byte, source, profile string) []Alert {
	ex, ok := n.extractors[source]
	if !ok {
		slog.Warn("No extractor for source", "source", source)
		return nil
	}

	extracted, err := ex.Extract(payload)
	if err != nil {
		slog.Debug("Extraction failed", "source", source, "profile", profile, "error", err)
		return nil
	}

	out := make([]Alert, 0, len(extracted))
	for _, a := range extracted {
		if a.Match == "" && a.ProfitPct == nil {
			continue
		}
		a.Source = source
		a.Profile = profile
		if a.CapturedAt.IsZero() {
			a.CapturedAt = n.now().UTC()
		}
		out = append(out, a)
	}
	return out
}
