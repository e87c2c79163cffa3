// Package chroma provides a vector store on top of Chroma's REST API.
package chroma

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/notevec/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for notevec records.
	DefaultCollectionName = "notevec"

	apiPrefix = "/api/v2/tenants/default_tenant/databases/default_database/collections"

	// claimAttempts bounds how often Insert retries after another writer
	// took the record id it picked.
	claimAttempts = 8
)

// Config holds configuration for the Chroma store.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions is the number of components of every stored vector.
	Dimensions uint
}

// Store implements vector.Store using Chroma. Each record is one Chroma
// entry whose id is the record id and whose metadata holds the span
// registry row, so a single add or delete keeps both relations in step.
type Store struct {
	baseURL        string
	collectionName string
	dimensions     uint
	httpClient     *http.Client
	logger         *slog.Logger

	mu           sync.Mutex
	collectionID string
	nextID       int64
}

// NewStore creates a Chroma store. The collection is resolved on first use.
func NewStore(c Config, logger *slog.Logger) (*Store, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("%w: chroma URL is required", vector.ErrConfiguration)
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("%w: chroma embedding dimensions cannot be 0, must be configured", vector.ErrConfiguration)
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	return &Store{
		baseURL:        c.URL,
		collectionName: collectionName,
		dimensions:     c.Dimensions,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// not nil. Any status outside 2xx is an error carrying the response body.
func (s *Store) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func (s *Store) collectionPath(op string) string {
	return fmt.Sprintf("%s/%s/%s", apiPrefix, s.collectionID, op)
}

// EnsureSchema gets or creates the collection and seeds the record id
// counter from the records already stored in it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureSchemaLocked(ctx)
}

func (s *Store) ensureSchemaLocked(ctx context.Context) error {
	if s.collectionID != "" {
		return nil
	}

	// Try to get existing collection first
	var collection chromaCollection
	status, err := s.do(ctx, http.MethodGet, apiPrefix+"/"+s.collectionName, nil, &collection)
	switch {
	case err == nil:
		if collection.Dimension != nil && uint(*collection.Dimension) != s.dimensions {
			return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, configured for %d; clear the database to rebuild it",
				vector.ErrDimensionMismatch, s.collectionName, *collection.Dimension, s.dimensions)
		}
	case status == http.StatusNotFound:
		// Collection doesn't exist, create it
		create := chromaCreateRequest{
			Name:     s.collectionName,
			Metadata: map[string]any{"hnsw:space": "l2"},
		}
		if _, err := s.do(ctx, http.MethodPost, apiPrefix, create, &collection); err != nil {
			return vector.StorageError(fmt.Sprintf("creating collection %q", s.collectionName), err)
		}
	default:
		return vector.StorageError(fmt.Sprintf("getting collection %q", s.collectionName), err)
	}

	s.collectionID = collection.ID

	last, err := s.lastRecordIDLocked(ctx)
	if err != nil {
		s.collectionID = ""
		return err
	}
	s.nextID = last

	s.logger.Info("connected to Chroma",
		"url", s.baseURL,
		"collection", s.collectionName,
		"collection_id", s.collectionID,
	)

	return nil
}

// Insert adds one entry carrying both the vector and the span registry row.
func (s *Store) Insert(ctx context.Context, nodeID string, span vector.Span, embedding []float32) (int64, error) {
	if nodeID == "" {
		return 0, fmt.Errorf("%w: node id is required", vector.ErrConfiguration)
	}
	if err := vector.CheckDimensions(embedding, s.dimensions); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureSchemaLocked(ctx); err != nil {
		return 0, err
	}

	for range claimAttempts {
		recordID := s.nextID + 1
		claim := uuid.NewString()

		reqBody := chromaAddRequest{
			IDs:        []string{strconv.FormatInt(recordID, 10)},
			Embeddings: [][]float32{embedding},
			Metadatas: []map[string]any{{
				"record_id": recordID,
				"node_id":   nodeID,
				"start":     span.Start,
				"end":       span.End,
				"claim":     claim,
			}},
		}
		if _, err := s.do(ctx, http.MethodPost, s.collectionPath("add"), reqBody, nil); err != nil {
			return 0, vector.StorageError("adding record for node "+nodeID, err)
		}

		// add ignores ids that already exist, so the entry is ours only if
		// it carries our claim.
		owned, err := s.claimedLocked(ctx, recordID, claim)
		if err != nil {
			return 0, err
		}
		if owned {
			s.nextID = recordID
			s.logger.Debug("added record to chroma", "record_id", recordID, "node_id", nodeID)
			return recordID, nil
		}

		last, err := s.lastRecordIDLocked(ctx)
		if err != nil {
			return 0, err
		}
		s.nextID = max(last, recordID)
		s.logger.Debug("record id taken by another writer", "record_id", recordID, "node_id", nodeID)
	}

	return 0, fmt.Errorf("%w: no free record id for node %s after %d attempts", vector.ErrStorage, nodeID, claimAttempts)
}

// claimedLocked reports whether the entry with recordID carries claim.
func (s *Store) claimedLocked(ctx context.Context, recordID int64, claim string) (bool, error) {
	var got chromaGetResponse
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath("get"), chromaGetRequest{
		IDs:     []string{strconv.FormatInt(recordID, 10)},
		Include: []string{"metadatas"},
	}, &got); err != nil {
		return false, vector.StorageError("reading back record", err)
	}
	md := metadataAt(got.Metadatas, 0)
	return len(got.IDs) == 1 && md != nil && md["claim"] == claim, nil
}

// lastRecordIDLocked returns the highest record id stored in the collection.
func (s *Store) lastRecordIDLocked(ctx context.Context) (int64, error) {
	var existing chromaGetResponse
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath("get"), chromaGetRequest{
		Include: []string{"metadatas"},
	}, &existing); err != nil {
		return 0, vector.StorageError("reading existing records", err)
	}

	var last int64
	for i := range existing.IDs {
		if r, ok := recordFromMetadata(existing.IDs[i], metadataAt(existing.Metadatas, i)); ok && r.ID > last {
			last = r.ID
		}
	}
	return last, nil
}

// Clear deletes every entry whose metadata names nodeID.
func (s *Store) Clear(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureSchemaLocked(ctx); err != nil {
		return err
	}

	reqBody := chromaDeleteRequest{Where: map[string]any{"node_id": nodeID}}
	if _, err := s.do(ctx, http.MethodPost, s.collectionPath("delete"), reqBody, nil); err != nil {
		return vector.StorageError("deleting records for node "+nodeID, err)
	}

	s.logger.Debug("deleted records from chroma", "node_id", nodeID)

	return nil
}

// DropAll deletes the collection and creates it again.
func (s *Store) DropAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.do(ctx, http.MethodDelete, apiPrefix+"/"+s.collectionName, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return vector.StorageError(fmt.Sprintf("deleting collection %q", s.collectionName), err)
	}
	s.collectionID = ""

	s.logger.Info("dropped chroma collection", "collection", s.collectionName)

	return s.ensureSchemaLocked(ctx)
}

// Query finds the topK entries nearest to embedding.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	if err := vector.CheckDimensions(embedding, s.dimensions); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.ensureSchemaLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	path := s.collectionPath("query")
	s.mu.Unlock()

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances"},
	}

	var queryResp chromaQueryResponse
	if _, err := s.do(ctx, http.MethodPost, path, reqBody, &queryResp); err != nil {
		return nil, vector.StorageError("querying chroma", err)
	}

	matches := []vector.Match{}

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return matches, nil
	}

	ids := queryResp.IDs[0]
	var distances []float64
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	for i, id := range ids {
		record, ok := recordFromMetadata(id, metadataAt(metadatas, i))
		if !ok {
			s.logger.Warn("skipping chroma entry without span metadata", "id", id)
			continue
		}
		m := vector.Match{Record: record}
		if i < len(distances) {
			m.Distance = distances[i]
		}
		matches = append(matches, m)
	}

	vector.SortMatches(matches)

	s.logger.Debug("queried chroma", "results", len(matches))

	return matches, nil
}

// Records returns the entries owned by nodeID.
func (s *Store) Records(ctx context.Context, nodeID string) ([]vector.Record, error) {
	s.mu.Lock()
	if err := s.ensureSchemaLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	path := s.collectionPath("get")
	s.mu.Unlock()

	var getResp chromaGetResponse
	if _, err := s.do(ctx, http.MethodPost, path, chromaGetRequest{
		Where:   map[string]any{"node_id": nodeID},
		Include: []string{"metadatas"},
	}, &getResp); err != nil {
		return nil, vector.StorageError("getting records for node "+nodeID, err)
	}

	records := []vector.Record{}
	for i, id := range getResp.IDs {
		if r, ok := recordFromMetadata(id, metadataAt(getResp.Metadatas, i)); ok {
			records = append(records, r)
		}
	}
	slices.SortFunc(records, func(a, b vector.Record) int { return cmp.Compare(a.ID, b.ID) })

	return records, nil
}

// Stats counts entries and distinct nodes.
func (s *Store) Stats(ctx context.Context) (vector.Stats, error) {
	s.mu.Lock()
	if err := s.ensureSchemaLocked(ctx); err != nil {
		s.mu.Unlock()
		return vector.Stats{}, err
	}
	path := s.collectionPath("get")
	s.mu.Unlock()

	var getResp chromaGetResponse
	if _, err := s.do(ctx, http.MethodPost, path, chromaGetRequest{
		Include: []string{"metadatas"},
	}, &getResp); err != nil {
		return vector.Stats{}, vector.StorageError("counting records", err)
	}

	nodes := map[string]struct{}{}
	for i, id := range getResp.IDs {
		if r, ok := recordFromMetadata(id, metadataAt(getResp.Metadatas, i)); ok {
			nodes[r.NodeID] = struct{}{}
		}
	}

	return vector.Stats{
		Records:    int64(len(getResp.IDs)),
		Nodes:      int64(len(nodes)),
		Dimensions: s.dimensions,
	}, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func metadataAt(metadatas []map[string]any, i int) map[string]any {
	if i < len(metadatas) {
		return metadatas[i]
	}
	return nil
}

// recordFromMetadata rebuilds a span registry row. JSON numbers decode as
// float64.
func recordFromMetadata(id string, md map[string]any) (vector.Record, bool) {
	recordID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || md == nil {
		return vector.Record{}, false
	}
	nodeID, ok := md["node_id"].(string)
	if !ok {
		return vector.Record{}, false
	}
	start, ok1 := md["start"].(float64)
	end, ok2 := md["end"].(float64)
	if !ok1 || !ok2 {
		return vector.Record{}, false
	}

	return vector.Record{
		ID:     recordID,
		NodeID: nodeID,
		Span:   vector.Span{Start: int(start), End: int(end)},
	}, true
}

var _ vector.Store = (*Store)(nil)
