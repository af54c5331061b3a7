package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scoring/internal/resilience"
)

// crmNamespace seeds deterministic object ids derived from CRM record ids.
var crmNamespace = uuid.MustParse("6f1c2a4e-8a43-4d53-9a0e-3b1f0c7d2e55")

const (
	propCRMID    = "crmId"
	propMetadata = "metadata"
)

// WeaviateOptions configures the Weaviate backend.
type WeaviateOptions struct {
	Host     string
	Scheme   string
	APIKey   string
	BaseName string
	Retry    resilience.Policy
}

// Weaviate is an Index storing one class per organization. Metadata is kept
// as a JSON text property since classes have a fixed schema.
type Weaviate struct {
	client *weaviate.Client
	base   string
	retry  resilience.Policy
}

// NewWeaviate connects a Weaviate-backed Index.
func NewWeaviate(opts WeaviateOptions) (*Weaviate, error) {
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "http"
	}
	cfg := weaviate.Config{Scheme: scheme, Host: opts.Host}
	if opts.APIKey != "" {
		cfg.Headers = map[string]string{"Authorization": "Bearer " + opts.APIKey}
	}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: weaviate: new client")
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultPolicy(resilience.KindVector)
	}
	return &Weaviate{client: cl, base: opts.BaseName, retry: retry}, nil
}

// ClassName converts an index name to a Weaviate class name: an uppercase
// first letter followed by letters and digits only.
func ClassName(indexName string) string {
	var b strings.Builder
	upper := true
	for _, r := range indexName {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	name := b.String()
	if name == "" || !unicode.IsLetter(rune(name[0])) {
		name = "C" + name
	}
	return name
}

// ObjectID derives a stable object UUID from a CRM record id.
func ObjectID(crmID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(crmNamespace, []byte(crmID)).String())
}

func (w *Weaviate) className(orgID string) string {
	return ClassName(IndexName(w.base, orgID))
}

func (w *Weaviate) EnsureIndex(ctx context.Context, orgID string) error {
	cls := w.className(orgID)

	exists, err := resilience.Do(ctx, w.retry, "weaviate: class exists", func(ctx context.Context) (bool, error) {
		ok, err := w.client.Schema().ClassExistenceChecker().WithClassName(cls).Do(ctx)
		return ok, markWeaviate(err)
	})
	if err != nil {
		return eris.Wrapf(err, "vectorindex: weaviate: check class %s", cls)
	}
	if exists {
		return nil
	}

	zap.L().Info("vectorindex: creating class", zap.String("class", cls))
	class := &models.Class{
		Class:      cls,
		Vectorizer: "none",
		VectorIndexConfig: map[string]any{
			"distance": MetricCosine,
		},
		Properties: []*models.Property{
			{Name: propCRMID, DataType: []string{"text"}},
			{Name: propMetadata, DataType: []string{"text"}},
		},
	}
	_, err = resilience.Do(ctx, w.retry, "weaviate: create class", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, markWeaviate(w.client.Schema().ClassCreator().WithClass(class).Do(ctx))
	})
	if err != nil {
		return eris.Wrapf(err, "vectorindex: weaviate: create class %s", cls)
	}
	return nil
}

func (w *Weaviate) Upsert(ctx context.Context, orgID string, rec Record) error {
	cls := w.className(orgID)

	md, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "vectorindex: weaviate: encode metadata")
	}

	// Batch import replaces an existing object with the same id.
	obj := &models.Object{
		Class: cls,
		ID:    ObjectID(rec.ID),
		Properties: map[string]any{
			propCRMID:    rec.ID,
			propMetadata: string(md),
		},
		Vector: rec.Vector,
	}
	resp, err := resilience.Do(ctx, w.retry, "weaviate: batch objects", func(ctx context.Context) ([]models.ObjectsGetResponse, error) {
		resp, err := w.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
		return resp, markWeaviate(err)
	})
	if err != nil {
		return eris.Wrapf(err, "vectorindex: weaviate: upsert %s", rec.ID)
	}
	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return eris.Errorf("vectorindex: weaviate: upsert %s: %s", rec.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (w *Weaviate) Query(ctx context.Context, orgID string, vec []float32, topK int) ([]Neighbor, error) {
	cls := w.className(orgID)

	resp, err := resilience.Do(ctx, w.retry, "weaviate: graphql get", func(ctx context.Context) (*models.GraphQLResponse, error) {
		nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)
		resp, err := w.client.GraphQL().Get().
			WithClassName(cls).
			WithNearVector(nearVector).
			WithLimit(topK).
			WithFields(
				gql.Field{Name: propCRMID},
				gql.Field{Name: propMetadata},
				gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "distance"}}},
			).
			Do(ctx)
		return resp, markWeaviate(err)
	})
	if err != nil {
		return nil, eris.Wrap(err, "vectorindex: weaviate: query")
	}
	if len(resp.Errors) > 0 {
		msg := resp.Errors[0].Message
		if strings.Contains(msg, "Cannot query field") {
			zap.L().Warn("vectorindex: query against missing class", zap.String("class", cls))
			return []Neighbor{}, nil
		}
		return nil, eris.Errorf("vectorindex: weaviate: graphql: %s", msg)
	}

	get, ok := resp.Data["Get"].(map[string]any)
	if !ok {
		return []Neighbor{}, nil
	}
	items, ok := get[cls].([]any)
	if !ok {
		return []Neighbor{}, nil
	}

	out := make([]Neighbor, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		n := Neighbor{Metadata: map[string]any{}}
		n.ID, _ = obj[propCRMID].(string)
		if raw, ok := obj[propMetadata].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &n.Metadata); err != nil {
				return nil, eris.Wrapf(err, "vectorindex: weaviate: decode metadata for %s", n.ID)
			}
		}
		if add, ok := obj["_additional"].(map[string]any); ok {
			n.Score = 1 - toFloat(add["distance"])
		}
		out = append(out, n)
	}
	return out, nil
}

// markWeaviate flags retryable HTTP statuses reported by the client.
func markWeaviate(err error) error {
	var werr *fault.WeaviateClientError
	if errors.As(err, &werr) && werr.IsUnexpectedStatusCode {
		return resilience.MarkStatus(resilience.KindVector, err, werr.StatusCode)
	}
	return err
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

