// Package pipeline orchestrates contact ingestion and lead scoring.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/cost"
	"github.com/sells-group/lead-scoring/internal/metadata"
	"github.com/sells-group/lead-scoring/internal/model"
	"github.com/sells-group/lead-scoring/internal/store"
	"github.com/sells-group/lead-scoring/internal/vectorindex"
	"github.com/sells-group/lead-scoring/pkg/zoho"
)

// Embedder produces the vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Ingester loads an organization's historical contacts into its index.
type Ingester struct {
	crm       zoho.Client
	index     vectorindex.Index
	embedder  Embedder
	store     store.Store
	baseIndex string
}

// NewIngester creates an Ingester. A nil store disables the run ledger.
func NewIngester(crm zoho.Client, index vectorindex.Index, embedder Embedder, st store.Store, baseIndex string) *Ingester {
	if st == nil {
		st = store.Nop{}
	}
	if baseIndex == "" {
		baseIndex = vectorindex.DefaultBaseName
	}
	return &Ingester{crm: crm, index: index, embedder: embedder, store: st, baseIndex: baseIndex}
}

// Run resolves the organization, makes sure its index exists, and embeds
// every contact keyed by CRM id. The first failure aborts the run.
func (i *Ingester) Run(ctx context.Context, refreshToken string) (*model.IngestSummary, error) {
	orgID, err := i.crm.FetchOrgID(ctx, refreshToken)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: resolve org")
	}
	indexName := vectorindex.IndexName(i.baseIndex, orgID)
	log := zap.L().With(zap.String("org_id", orgID), zap.String("index", indexName))

	run, err := i.store.CreateIngestRun(ctx, orgID, indexName)
	if err != nil {
		log.Warn("ingest: failed to record run start", zap.Error(err))
		run = nil
	}

	meter := &cost.Meter{}
	count, err := i.ingest(cost.WithMeter(ctx, meter), log, orgID, refreshToken)
	i.finish(ctx, log, run, count, err)
	if err != nil {
		return nil, err
	}

	log.Info("ingest: complete", zap.Int("count", count), zap.Float64("cost_usd", meter.USD()))
	return &model.IngestSummary{
		Status:  "success",
		OrgID:   orgID,
		Index:   indexName,
		Count:   count,
		CostUSD: meter.USD(),
	}, nil
}

func (i *Ingester) ingest(ctx context.Context, log *zap.Logger, orgID, refreshToken string) (int, error) {
	if err := i.index.EnsureIndex(ctx, orgID); err != nil {
		return 0, eris.Wrap(err, "ingest: ensure index")
	}

	contacts, err := i.crm.FetchAllContacts(ctx, refreshToken)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: fetch contacts")
	}
	log.Info("ingest: fetched contacts", zap.Int("contacts", len(contacts)))

	count := 0
	for _, contact := range contacts {
		id := contact.ID()
		if id == "" {
			contactsSkippedTotal.Inc()
			log.Warn("ingest: skipping contact without id")
			continue
		}

		md := metadata.Sanitize(contact)
		text, err := metadata.JSON(md)
		if err != nil {
			return count, eris.Wrapf(err, "ingest: encode contact %s", id)
		}
		vec, err := i.embedder.Embed(ctx, text)
		if err != nil {
			return count, eris.Wrapf(err, "ingest: embed contact %s", id)
		}
		if err := i.index.Upsert(ctx, orgID, vectorindex.Record{ID: id, Vector: vec, Metadata: md}); err != nil {
			return count, eris.Wrapf(err, "ingest: upsert contact %s", id)
		}
		contactsIngestedTotal.Inc()
		count++
	}
	return count, nil
}

func (i *Ingester) finish(ctx context.Context, log *zap.Logger, run *model.IngestRun, count int, runErr error) {
	ingestRunsTotal.WithLabelValues(runStatus(runErr)).Inc()
	if run == nil {
		return
	}
	if err := i.store.FinishIngestRun(ctx, run.ID, count, runErr); err != nil {
		log.Warn("ingest: failed to record run finish", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func runStatus(err error) string {
	if err != nil {
		return string(model.IngestStatusFailed)
	}
	return string(model.IngestStatusComplete)
}
