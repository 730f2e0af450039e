// Package weaviate implements vector.Backend against a Weaviate instance,
// adapted from the teacher's internal/search waviateSearcher: one class
// per embedded table, one tenant per caller_id, metadata.column_name
// disambiguating multiple embedded columns of the same table.
package weaviate

import (
	"context"
	"fmt"
	"strconv"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/rvbbit/rvbbit/internal/vector"
)

// Backend implements vector.Backend using weaviate-go-client.
type Backend struct {
	client *weaviate.Client
}

var _ vector.Backend = (*Backend)(nil)

// New constructs a Backend against a Weaviate instance at baseURL (host:port,
// no scheme).
func New(baseURL string) (*Backend, error) {
	cl, err := weaviate.NewClient(weaviate.Config{Scheme: "http", Host: baseURL})
	if err != nil {
		return nil, err
	}
	return &Backend{client: cl}, nil
}

func (b *Backend) ensureTenant(ctx context.Context, class, tenant string) {
	if tenant == "" {
		return
	}
	_ = b.client.Schema().TenantsCreator().WithClassName(class).WithTenants(models.Tenant{Name: tenant}).Do(ctx)
}

func (b *Backend) Upsert(ctx context.Context, tenant, class, column string, records []vector.Record) error {
	b.ensureTenant(ctx, class, tenant)
	for _, r := range records {
		props := map[string]interface{}{
			"text":     r.Text,
			"metadata": withColumnName(r.Metadata, column),
		}
		_, err := b.client.Data().Creator().
			WithClassName(class).
			WithTenant(tenant).
			WithID(r.ID).
			WithProperties(props).
			WithVector(r.Embedding).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("weaviate upsert %s/%s: %w", class, r.ID, err)
		}
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, tenant, class, id string) error {
	if tenant == "" || id == "" {
		return nil
	}
	_ = b.client.Data().Deleter().WithClassName(class).WithTenant(tenant).WithID(id).Do(ctx)
	return nil
}

func (b *Backend) VectorSearch(ctx context.Context, tenant, class, column, query string, queryVector []float32, topK int, minScore float64) ([]vector.SearchResult, error) {
	where := filters.Where().WithPath([]string{"metadata", "column_name"}).WithOperator(filters.Equal).WithValueText(column)

	req := b.client.GraphQL().Get().
		WithClassName(class).
		WithWhere(where).
		WithNearVector((&gql.NearVectorArgumentBuilder{}).WithVector(queryVector)).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "text"},
			gql.Field{Name: "metadata"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}, {Name: "distance"}}},
		)
	if tenant != "" {
		req = req.WithTenant(tenant)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %v", resp.Errors)
	}
	return scanResults(resp.Data, class, minScore)
}

func (b *Backend) HybridSearch(ctx context.Context, tenant, class, column, query string, queryVector []float32, topK int, alpha float32) ([]vector.SearchResult, error) {
	where := filters.Where().WithPath([]string{"metadata", "column_name"}).WithOperator(filters.Equal).WithValueText(column)

	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithVector(queryVector).
		WithAlpha(alpha).
		WithProperties([]string{"text"})

	req := b.client.GraphQL().Get().
		WithClassName(class).
		WithWhere(where).
		WithHybrid(hy).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "text"},
			gql.Field{Name: "metadata"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}, {Name: "score"}}},
		)
	if tenant != "" {
		req = req.WithTenant(tenant)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %v", resp.Errors)
	}
	return scanResults(resp.Data, class, 0)
}

func scanResults(data map[string]interface{}, class string, minScore float64) ([]vector.SearchResult, error) {
	getData, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := getData[class].([]interface{})
	if !ok {
		return []vector.SearchResult{}, nil
	}
	out := make([]vector.SearchResult, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		add, _ := m["_additional"].(map[string]interface{})
		score := scoreOf(add)
		if score < minScore {
			continue
		}
		meta, _ := m["metadata"].(map[string]interface{})
		id, _ := add["id"].(string)
		text, _ := m["text"].(string)
		out = append(out, vector.SearchResult{ID: id, Text: text, Score: score, Metadata: meta})
	}
	return out, nil
}

func scoreOf(add map[string]interface{}) float64 {
	if add == nil {
		return 0
	}
	v, ok := add["score"]
	if !ok {
		v, ok = add["distance"]
		if !ok {
			return 0
		}
	}
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func withColumnName(meta map[string]interface{}, column string) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["column_name"] = column
	return out
}
