package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/geosearch/internal/domain"
)

// Searcher is the part of the geocoder the pipeline depends on.
type Searcher interface {
	Search(ctx context.Context, q domain.Query, opts domain.Options) ([]domain.Result, error)
}

// GeocodeTransformer resolves batch requests through a Searcher.
type GeocodeTransformer struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewTransformer creates a GeocodeTransformer.
func NewTransformer(s Searcher, logger *slog.Logger) *GeocodeTransformer {
	return &GeocodeTransformer{searcher: s, logger: logger}
}

// Transform parses a request and runs its search. Unparseable requests return
// an error; a failed search still produces a response carrying the error text.
func (t *GeocodeTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseBatchRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}

	q, opts := req.Search()
	results, err := t.searcher.Search(ctx, q, opts)
	if err != nil {
		t.logger.Warn("batch search failed", "id", req.ID, "error", err)
	}
	return domain.SerializeBatchResponse(domain.NewBatchResponse(req, results, err))
}
