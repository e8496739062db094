package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"github.com/banku/user-service/internal/domain/event"
)

// UserIndex is the search read model, fed by the event worker. Documents are
// keyed by aggregate id and rebuilt incrementally per event, so the index
// always trails the log by at most the bus lag.
type UserIndex struct {
	es     *elasticsearch.Client
	index  string
	logger *logrus.Logger
}

func NewUserIndex(es *elasticsearch.Client, index string, logger *logrus.Logger) *UserIndex {
	return &UserIndex{es: es, index: index, logger: logger}
}

// ApplyEvent projects one event into the document store.
func (i *UserIndex) ApplyEvent(ctx context.Context, env event.Envelope, payload any) error {
	switch p := payload.(type) {
	case event.UserCreated:
		return i.put(ctx, env.AggregateID, map[string]any{
			"email":           p.Email,
			"provider":        p.Provider,
			"first_name":      p.FirstName,
			"last_name":       p.LastName,
			"profile_picture": p.ProfilePicture,
			"created_at":      env.Timestamp.Format(time.RFC3339Nano),
			"updated_at":      env.Timestamp.Format(time.RFC3339Nano),
		})
	case event.UserUpdated:
		doc := map[string]any{"updated_at": env.Timestamp.Format(time.RFC3339Nano)}
		if p.Email != nil {
			doc["email"] = *p.Email
		}
		if p.PreferredLanguage != nil {
			doc["preferred_language"] = *p.PreferredLanguage
		}
		if p.ProfilePicture != nil {
			doc["profile_picture"] = *p.ProfilePicture
		}
		return i.update(ctx, env.AggregateID, doc)
	case event.UserDeleted:
		return i.delete(ctx, env.AggregateID)
	case event.LoginRecorded:
		// Login history is not searchable; nothing to project.
		return nil
	default:
		return nil
	}
}

func (i *UserIndex) put(ctx context.Context, id string, doc map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: i.index, DocumentID: id, Body: strings.NewReader(string(b)), Refresh: "false"}
	return i.do(ctx, id, req.Do)
}

func (i *UserIndex) update(ctx context.Context, id string, doc map[string]any) error {
	b, err := json.Marshal(map[string]any{"doc": doc, "doc_as_upsert": true})
	if err != nil {
		return err
	}
	req := esapi.UpdateRequest{Index: i.index, DocumentID: id, Body: strings.NewReader(string(b))}
	return i.do(ctx, id, req.Do)
}

func (i *UserIndex) delete(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{Index: i.index, DocumentID: id}
	return i.do(ctx, id, req.Do)
}

func (i *UserIndex) do(ctx context.Context, id string, fn func(context.Context, esapi.Transport) (*esapi.Response, error)) error {
	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := fn(c, i.es)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()
	// 404 on delete just means the document never made it into the index.
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("es response for %s: %s", id, res.Status())
	}
	return nil
}

// Search runs a multi_match over email and name fields.
func (i *UserIndex) Search(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if size <= 0 || size > 50 {
		size = 10
	}
	query := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": []string{"email^2", "first_name", "last_name"},
			},
		},
		"size": size,
	}
	b, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := i.es.Search(
		i.es.Search.WithContext(c),
		i.es.Search.WithIndex(i.index),
		i.es.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		doc := h.Source
		doc["id"] = h.ID
		out = append(out, doc)
	}
	return out, nil
}
