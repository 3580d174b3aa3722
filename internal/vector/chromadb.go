// File path: internal/vector/chromadb.go
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/common/telemetry"
)

// Store is a single vector collection.
type Store interface {
	Available() bool
	Collection() string
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []Record, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
}

// Record is one document stored alongside its embedding.
type Record struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

type SearchResult struct {
	ID      string
	Score   float32
	Content string
	Payload map[string]interface{}
}

// Client talks to one ChromaDB collection over the v1 REST API.
type Client struct {
	http      *resty.Client
	transport *http.Transport

	collection   string
	collectionID string
	available    bool

	mu sync.RWMutex
}

var (
	errNotFound    = errors.New("resource not found")
	errConflict    = errors.New("resource conflict")
	ErrUnavailable = errors.New("chromadb unavailable")
)

// New constructs a client bound to collection. Connection failures are logged and the
// client is returned unavailable; every operation retries the handshake.
func New(ctx context.Context, cfg Config, collection string) (*Client, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("vector: collection name is required")
	}
	logger := common.Logger()
	logger.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("collection", collection).
		Dur("timeout", cfg.Timeout).
		Msg("vector: initializing chromadb client")

	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	httpClient := resty.New().
		SetTransport(transport).
		SetBaseURL(strings.TrimRight(cfg.BaseURL(), "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	client := &Client{
		http:       httpClient,
		transport:  transport,
		collection: collection,
	}
	if err := client.ensureReady(ctx); err != nil {
		logger.Warn().Str("collection", collection).Err(err).Msg("vector: chromadb initialization failed")
		return client, nil
	}
	logger.Info().Str("collection", collection).Msg("vector: chromadb connection established")
	return client, nil
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) Collection() string {
	if c == nil {
		return ""
	}
	return c.collection
}

func (c *Client) setAvailable(v bool) {
	c.mu.Lock()
	c.available = v
	c.mu.Unlock()
}

func (c *Client) ensureReady(ctx context.Context) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	c.mu.RLock()
	ready := c.available && c.collectionID != ""
	c.mu.RUnlock()
	if ready {
		return nil
	}
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = c.health(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			c.setAvailable(false)
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		c.setAvailable(false)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err = c.ensureCollectionID(ctx); err != nil {
		c.setAvailable(false)
		return err
	}
	c.setAvailable(true)
	return nil
}

func (c *Client) EnsureCollection(ctx context.Context) error {
	return c.ensureReady(ctx)
}

func (c *Client) Upsert(ctx context.Context, records []Record, vectors [][]float32) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("vector: %d records but %d embeddings", len(records), len(vectors))
	}
	ids := make([]string, 0, len(records))
	documents := make([]string, 0, len(records))
	metadatas := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
		documents = append(documents, rec.Content)
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]interface{}{}
		}
		metadatas = append(metadatas, meta)
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": vectors,
	}
	path := fmt.Sprintf("/collections/%s/upsert", url.PathEscape(c.id()))
	if err := c.doRequest(ctx, http.MethodPost, path, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			fallback := fmt.Sprintf("/collections/%s/add", url.PathEscape(c.id()))
			return c.doRequest(ctx, http.MethodPost, fallback, payload, nil)
		}
		return err
	}
	telemetry.RecordIndexed(c.collection, len(records))
	return nil
}

func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        limit,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	path := fmt.Sprintf("/collections/%s/query", url.PathEscape(c.id()))
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Documents [][]string                 `json:"documents"`
	}
	start := time.Now()
	err := c.doRequest(ctx, http.MethodPost, path, body, &resp)
	telemetry.RecordVectorSearch(c.collection, err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	results := make([]SearchResult, 0, len(resp.IDs[0]))
	for idx, id := range resp.IDs[0] {
		payload := map[string]interface{}{}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			for k, v := range resp.Metadatas[0][idx] {
				payload[k] = v
			}
		}
		content := ""
		if len(resp.Documents) > 0 && idx < len(resp.Documents[0]) {
			content = resp.Documents[0][idx]
		}
		score := float32(0)
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			score = float32(1.0 / (1.0 + resp.Distances[0][idx]))
		}
		results = append(results, SearchResult{ID: id, Score: score, Content: content, Payload: payload})
	}
	return results, nil
}

var _ Store = (*Client)(nil)

func (c *Client) id() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collectionID
}

func (c *Client) ensureCollectionID(ctx context.Context) error {
	if c.id() != "" {
		return nil
	}
	id, err := c.findCollection(ctx, c.collection)
	if err != nil {
		return err
	}
	if id == "" {
		if id, err = c.createCollection(ctx, c.collection); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.collectionID = id
	c.mu.Unlock()
	return nil
}

func (c *Client) findCollection(ctx context.Context, name string) (string, error) {
	var resp []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/collections", nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		return "", err
	}
	for _, col := range resp {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]interface{}{"hnsw:space": "l2"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/collections", payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) health(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/heartbeat", nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if c == nil || c.http == nil {
		return errors.New("chromadb client not configured")
	}
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	switch resp.StatusCode() {
	case http.StatusNotFound:
		return errNotFound
	case http.StatusConflict:
		return errConflict
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("chromadb %s %s failed: %s", method, path, strings.TrimSpace(resp.String()))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

// Close releases pooled resources associated with the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}
