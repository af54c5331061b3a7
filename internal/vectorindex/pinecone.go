package vectorindex

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/resilience"
	"github.com/sells-group/lead-scoring/pkg/pinecone"
)

// PineconeOptions configures the Pinecone backend.
type PineconeOptions struct {
	BaseName  string
	Dimension int
	Cloud     string
	Region    string

	// ReadyTimeout bounds the wait for a newly created index to become ready.
	ReadyTimeout time.Duration
	// PollInterval is the delay between readiness checks.
	PollInterval time.Duration
}

// Pinecone is an Index backed by Pinecone serverless indexes.
type Pinecone struct {
	client pinecone.Client
	opts   PineconeOptions

	mu    sync.Mutex
	hosts map[string]string
}

// NewPinecone creates a Pinecone-backed Index.
func NewPinecone(client pinecone.Client, opts PineconeOptions) *Pinecone {
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.Cloud == "" {
		opts.Cloud = "aws"
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Pinecone{
		client: client,
		opts:   opts,
		hosts:  make(map[string]string),
	}
}

func (p *Pinecone) EnsureIndex(ctx context.Context, orgID string) error {
	name := IndexName(p.opts.BaseName, orgID)
	log := zap.L().With(zap.String("index", name))

	indexes, err := p.client.ListIndexes(ctx)
	if err != nil {
		return eris.Wrap(err, "vectorindex: pinecone: list indexes")
	}
	for _, idx := range indexes {
		if idx.Name == name {
			if idx.Host != "" {
				p.setHost(name, idx.Host)
			}
			return nil
		}
	}

	log.Info("vectorindex: creating index",
		zap.Int("dimension", p.opts.Dimension),
		zap.String("cloud", p.opts.Cloud),
		zap.String("region", p.opts.Region),
	)
	_, err = p.client.CreateIndex(ctx, pinecone.CreateIndexRequest{
		Name:      name,
		Dimension: p.opts.Dimension,
		Metric:    MetricCosine,
		Spec: pinecone.IndexSpec{Serverless: &pinecone.ServerlessSpec{
			Cloud:  p.opts.Cloud,
			Region: p.opts.Region,
		}},
	})
	if err != nil && !resilience.AlreadyExists(err) {
		return eris.Wrapf(err, "vectorindex: pinecone: create index %s", name)
	}

	return p.waitReady(ctx, name)
}

func (p *Pinecone) waitReady(ctx context.Context, name string) error {
	deadline := time.Now().Add(p.opts.ReadyTimeout)
	for {
		idx, err := p.client.DescribeIndex(ctx, name)
		if err != nil {
			return eris.Wrapf(err, "vectorindex: pinecone: describe index %s", name)
		}
		if idx.Status.Ready && idx.Host != "" {
			p.setHost(name, idx.Host)
			return nil
		}
		if time.Now().After(deadline) {
			return eris.Errorf("vectorindex: pinecone: index %s not ready after %s", name, p.opts.ReadyTimeout)
		}

		timer := time.NewTimer(p.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return eris.Wrap(ctx.Err(), "vectorindex: pinecone: wait ready")
		case <-timer.C:
		}
	}
}

func (p *Pinecone) Upsert(ctx context.Context, orgID string, rec Record) error {
	name := IndexName(p.opts.BaseName, orgID)
	host, found, err := p.host(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		return eris.Errorf("vectorindex: pinecone: index %s not found", name)
	}

	_, err = p.client.Upsert(ctx, host, pinecone.UpsertRequest{
		Vectors: []pinecone.Vector{{
			ID:       rec.ID,
			Values:   rec.Vector,
			Metadata: map[string]any(rec.Metadata),
		}},
	})
	if err != nil {
		return eris.Wrapf(err, "vectorindex: pinecone: upsert %s", rec.ID)
	}
	return nil
}

func (p *Pinecone) Query(ctx context.Context, orgID string, vec []float32, topK int) ([]Neighbor, error) {
	name := IndexName(p.opts.BaseName, orgID)
	host, found, err := p.host(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		zap.L().Warn("vectorindex: query against missing index", zap.String("index", name))
		return []Neighbor{}, nil
	}

	resp, err := p.client.Query(ctx, host, pinecone.QueryRequest{
		Vector:          vec,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: pinecone: query")
	}

	out := make([]Neighbor, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		md := m.Metadata
		if md == nil {
			md = map[string]any{}
		}
		out = append(out, Neighbor{ID: m.ID, Score: m.Score, Metadata: md})
	}
	return out, nil
}

// host resolves and caches the data-plane host for an index.
func (p *Pinecone) host(ctx context.Context, name string) (string, bool, error) {
	p.mu.Lock()
	h, ok := p.hosts[name]
	p.mu.Unlock()
	if ok {
		return h, true, nil
	}

	idx, err := p.client.DescribeIndex(ctx, name)
	if err != nil {
		if pinecone.IsStatus(err, http.StatusNotFound) {
			return "", false, nil
		}
		return "", false, eris.Wrapf(err, "vectorindex: pinecone: describe index %s", name)
	}
	if idx.Host == "" {
		return "", false, eris.Errorf("vectorindex: pinecone: index %s has no host", name)
	}
	p.setHost(name, idx.Host)
	return idx.Host, true, nil
}

func (p *Pinecone) setHost(name, host string) {
	p.mu.Lock()
	p.hosts[name] = host
	p.mu.Unlock()
}
