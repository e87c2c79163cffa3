// Package qdrant provides a vector store backed by a Qdrant server over gRPC.
//
// Every record is one point: the point id is the record id, the vector is the
// embedding and the payload is the span registry row. A single point insert
// or a filtered delete therefore keeps both relations in step. Points are
// written insert-only and read back, so concurrent writers never share a
// record id.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/notevec/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for notevec records.
	DefaultCollectionName = "notevec"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadRecordID = "record_id"
	payloadNodeID   = "node_id"
	payloadStart    = "start"
	payloadEnd      = "end"
	payloadClaim    = "claim"

	// claimAttempts bounds how often Insert retries after another writer
	// took the record id it picked.
	claimAttempts = 8

	scrollPage = 256
)

// Config holds configuration for the Qdrant store.
type Config struct {
	// Target is the Qdrant gRPC address, "host" or "host:port".
	Target string

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string

	// APIKey is sent when set.
	APIKey string

	// Dimensions is the number of components of every stored vector.
	Dimensions uint
}

// Store implements vector.Store on Qdrant.
type Store struct {
	host       string
	port       int
	apiKey     string
	collection string
	dimensions uint
	logger     *slog.Logger

	mu     sync.Mutex
	client *qdrant.Client
	schema bool
	nextID uint64
}

// NewStore creates a Qdrant store. The client connects on first use.
func NewStore(c Config, logger *slog.Logger) (*Store, error) {
	if c.Target == "" {
		return nil, fmt.Errorf("%w: qdrant target is required", vector.ErrConfiguration)
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("%w: qdrant embedding dimensions cannot be 0, must be configured", vector.ErrConfiguration)
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	collection := c.CollectionName
	if collection == "" {
		collection = DefaultCollectionName
	}

	return &Store{
		host:       host,
		port:       port,
		apiKey:     c.APIKey,
		collection: collection,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port given
		return target, DefaultPort, nil //nolint:nilerr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid qdrant port %q", vector.ErrConfiguration, portStr)
	}
	return host, port, nil
}

func (s *Store) connLocked() (*qdrant.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   s.host,
		Port:   s.port,
		APIKey: s.apiKey,
	})
	if err != nil {
		return nil, vector.StorageError("connecting to qdrant", err)
	}

	s.client = client
	return client, nil
}

// EnsureSchema creates the collection with Euclid distance and payload
// indexes, or verifies the width of an existing one.
func (s *Store) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.readyLocked(ctx)
	return err
}

func (s *Store) readyLocked(ctx context.Context) (*qdrant.Client, error) {
	client, err := s.connLocked()
	if err != nil {
		return nil, err
	}
	if s.schema {
		return client, nil
	}

	exists, err := client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, vector.StorageError("checking collection "+s.collection, err)
	}

	if exists {
		info, err := client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return nil, vector.StorageError("reading collection "+s.collection, err)
		}
		width := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if width != uint64(s.dimensions) {
			return nil, fmt.Errorf("%w: collection %q holds %d-dimensional vectors, configured for %d; clear the database to rebuild it",
				vector.ErrDimensionMismatch, s.collection, width, s.dimensions)
		}
	} else {
		if err := s.createCollection(ctx, client); err != nil {
			return nil, err
		}
	}

	last, err := s.lastRecordID(ctx, client)
	if err != nil {
		return nil, err
	}
	s.nextID = last
	s.schema = true

	s.logger.Info("connected to Qdrant",
		"host", s.host,
		"port", s.port,
		"collection", s.collection,
	)

	return client, nil
}

func (s *Store) createCollection(ctx context.Context, client *qdrant.Client) error {
	err := client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return vector.StorageError("creating collection "+s.collection, err)
	}

	indexes := map[string]qdrant.FieldType{
		payloadNodeID:   qdrant.FieldType_FieldTypeKeyword,
		payloadRecordID: qdrant.FieldType_FieldTypeInteger,
	}
	for field, fieldType := range indexes {
		if _, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		}); err != nil {
			return vector.StorageError("indexing payload field "+field, err)
		}
	}

	return nil
}

// lastRecordID returns the highest record id stored in the collection.
func (s *Store) lastRecordID(ctx context.Context, client *qdrant.Client) (uint64, error) {
	points, err := client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
		OrderBy: &qdrant.OrderBy{
			Key:       payloadRecordID,
			Direction: qdrant.Direction_Desc.Enum(),
		},
	})
	if err != nil {
		return 0, vector.StorageError("reading last record id", err)
	}
	if len(points) == 0 {
		return 0, nil
	}
	return points[0].GetId().GetNum(), nil
}

// Insert upserts one point carrying both the vector and the span registry row.
func (s *Store) Insert(ctx context.Context, nodeID string, span vector.Span, embedding []float32) (int64, error) {
	if nodeID == "" {
		return 0, fmt.Errorf("%w: node id is required", vector.ErrConfiguration)
	}
	if err := vector.CheckDimensions(embedding, s.dimensions); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	client, err := s.readyLocked(ctx)
	if err != nil {
		return 0, err
	}

	for range claimAttempts {
		recordID := s.nextID + 1
		claim := uuid.NewString()

		_, err = client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			UpdateMode:     qdrant.UpdateMode_InsertOnly.Enum(),
			Points: []*qdrant.PointStruct{{
				Id:      qdrant.NewIDNum(recordID),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadRecordID: int64(recordID),
					payloadNodeID:   nodeID,
					payloadStart:    int64(span.Start),
					payloadEnd:      int64(span.End),
					payloadClaim:    claim,
				}),
			}},
		})
		if err != nil {
			return 0, vector.StorageError("inserting point for node "+nodeID, err)
		}

		owned, err := s.claimed(ctx, client, recordID, claim)
		if err != nil {
			return 0, err
		}
		if owned {
			s.nextID = recordID
			return int64(recordID), nil
		}

		last, err := s.lastRecordID(ctx, client)
		if err != nil {
			return 0, err
		}
		s.nextID = max(last, recordID)
		s.logger.Debug("record id taken by another writer", "record_id", recordID, "node_id", nodeID)
	}

	return 0, fmt.Errorf("%w: no free record id for node %s after %d attempts", vector.ErrStorage, nodeID, claimAttempts)
}

// claimed reports whether the point with recordID carries claim.
func (s *Store) claimed(ctx context.Context, client *qdrant.Client, recordID uint64, claim string) (bool, error) {
	points, err := client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(recordID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return false, vector.StorageError("reading back point", err)
	}
	if len(points) != 1 {
		return false, nil
	}
	return points[0].GetPayload()[payloadClaim].GetStringValue() == claim, nil
}

func nodeFilter(nodeID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadNodeID, nodeID)},
	}
}

// Clear deletes every point whose payload names nodeID.
func (s *Store) Clear(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, err := s.readyLocked(ctx)
	if err != nil {
		return err
	}

	if _, err := client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(nodeFilter(nodeID)),
	}); err != nil {
		return vector.StorageError("deleting points for node "+nodeID, err)
	}

	return nil
}

// DropAll deletes the collection and creates it again.
func (s *Store) DropAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, err := s.connLocked()
	if err != nil {
		return err
	}

	exists, err := client.CollectionExists(ctx, s.collection)
	if err != nil {
		return vector.StorageError("checking collection "+s.collection, err)
	}
	if exists {
		if err := client.DeleteCollection(ctx, s.collection); err != nil {
			return vector.StorageError("deleting collection "+s.collection, err)
		}
	}
	s.schema = false

	s.logger.Info("dropped qdrant collection", "collection", s.collection)

	_, err = s.readyLocked(ctx)
	return err
}

// Query searches the collection. Qdrant reports the Euclidean distance as
// the score for Euclid collections, ascending.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		topK = vector.DefaultTopK
	}
	if err := vector.CheckDimensions(embedding, s.dimensions); err != nil {
		return nil, err
	}

	s.mu.Lock()
	client, err := s.readyLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	points, err := client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, vector.StorageError("querying qdrant", err)
	}

	matches := make([]vector.Match, 0, len(points))
	for _, p := range points {
		matches = append(matches, vector.Match{
			Record:   recordFromPayload(p.GetId().GetNum(), p.GetPayload()),
			Distance: float64(p.GetScore()),
		})
	}
	vector.SortMatches(matches)

	return matches, nil
}

// Records returns the points owned by nodeID.
func (s *Store) Records(ctx context.Context, nodeID string) ([]vector.Record, error) {
	return s.scrollAll(ctx, nodeFilter(nodeID))
}

// Stats counts points and distinct nodes.
func (s *Store) Stats(ctx context.Context) (vector.Stats, error) {
	records, err := s.scrollAll(ctx, nil)
	if err != nil {
		return vector.Stats{}, err
	}

	nodes := map[string]struct{}{}
	for _, r := range records {
		nodes[r.NodeID] = struct{}{}
	}

	return vector.Stats{
		Records:    int64(len(records)),
		Nodes:      int64(len(nodes)),
		Dimensions: s.dimensions,
	}, nil
}

// scrollAll pages through the collection in record id order, keyed on the
// last record id seen.
func (s *Store) scrollAll(ctx context.Context, filter *qdrant.Filter) ([]vector.Record, error) {
	s.mu.Lock()
	client, err := s.readyLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	records := []vector.Record{}
	var last int64
	for {
		page := &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewRange(payloadRecordID, &qdrant.Range{Gt: qdrant.PtrOf(float64(last))}),
			},
		}
		if filter != nil {
			page.Must = append(page.Must, filter.Must...)
		}

		points, err := client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         page,
			Limit:          qdrant.PtrOf(uint32(scrollPage)),
			WithPayload:    qdrant.NewWithPayload(true),
			OrderBy: &qdrant.OrderBy{
				Key:       payloadRecordID,
				Direction: qdrant.Direction_Asc.Enum(),
			},
		})
		if err != nil {
			return nil, vector.StorageError("scrolling qdrant", err)
		}

		for _, p := range points {
			r := recordFromPayload(p.GetId().GetNum(), p.GetPayload())
			records = append(records, r)
			last = r.ID
		}
		if len(points) < scrollPage {
			return records, nil
		}
	}
}

// Close closes the gRPC connection, if one was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.schema = false
	return err
}

func recordFromPayload(id uint64, payload map[string]*qdrant.Value) vector.Record {
	return vector.Record{
		ID:     int64(id),
		NodeID: payload[payloadNodeID].GetStringValue(),
		Span: vector.Span{
			Start: int(payload[payloadStart].GetIntegerValue()),
			End:   int(payload[payloadEnd].GetIntegerValue()),
		},
	}
}

var _ vector.Store = (*Store)(nil)
