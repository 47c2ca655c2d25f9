// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, batched upsert, and filtered similarity search. It is the one
// seam between the engine and the vector store's wire protocol, so swapping
// the store never touches ingestion or query logic.
package semantic

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// pointsAPI is the subset of the Qdrant points service the store uses.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// collectionsAPI is the subset of the Qdrant collections service the store uses.
type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
}

// Store is a multi-collection Qdrant client. It owns the gRPC connection
// and is safe for concurrent use by ingestion and query callers; the only
// local state is a cache of collection dimensionalities.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI

	mu   sync.RWMutex
	dims map[string]int
}

// New creates a Store connected to Qdrant at the given gRPC address.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	s := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn))
	s.conn = conn
	return s, nil
}

// NewWithClients creates a Store over pre-built service clients.
func NewWithClients(points pointsAPI, collections collectionsAPI) *Store {
	return &Store{
		points:      points,
		collections: collections,
		dims:        make(map[string]int),
	}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// ListCollections returns the names of all collections in the store.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	resp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, wrapErr("list collections", err)
	}
	names := make([]string, 0, len(resp.GetCollections()))
	for _, c := range resp.GetCollections() {
		names = append(names, c.GetName())
	}
	return names, nil
}

// CreateCollection creates a named collection with the given fixed vector
// dimensionality and cosine distance. A redundant create fails with
// ErrCollectionExists; callers decide existence via ListCollections first.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return wrapErr(fmt.Sprintf("create collection %s", name), err)
	}
	s.mu.Lock()
	s.dims[name] = dimension
	s.mu.Unlock()
	return nil
}

// Upsert writes records into a collection, idempotent per record ID: the
// point UUID is derived from the natural key, so a repeated ID overwrites.
// Any record whose vector length differs from the collection's dimension
// rejects the whole batch with ErrDimensionMismatch before a single write.
func (s *Store) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		if len(r.Vector) != dim {
			return fmt.Errorf("semantic: upsert %s: record %s has %d dims, collection has %d: %w",
				collection, r.ID, len(r.Vector), dim, ErrDimensionMismatch)
		}
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(r.ID)},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Vector},
				},
			},
			Payload: map[string]*pb.Value{
				payloadID:       stringValue(r.ID),
				payloadText:     stringValue(r.Text),
				payloadSource:   stringValue(r.ExternalSourceName),
				payloadMetadata: stringValue(r.AdditionalMetadata),
			},
		}
	}

	wait := true
	_, err = s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return wrapErr(fmt.Sprintf("upsert %d points into %s", len(points), collection), err)
	}
	return nil
}

// Search performs a filtered k-NN similarity search. The equality filter,
// when given, is serialized here to the encoded source-tag form and applied
// by the store before ranking. At most limit hits are returned, all scoring
// at or above scoreThreshold when it is positive. Zero hits is a valid
// empty result, never an error.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, filter *Filter, scoreThreshold float32, limit int) ([]SearchHit, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = &scoreThreshold
	}
	if filter != nil {
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{
				fieldMatch(payloadSource, filter.Key+":"+filter.Value),
			},
		}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("search %s", collection), err)
	}

	hits := make([]SearchHit, len(resp.GetResult()))
	for i, p := range resp.GetResult() {
		payload := p.GetPayload()
		hits[i] = SearchHit{
			Score: p.GetScore(),
			Record: Record{
				ID:                 payload[payloadID].GetStringValue(),
				Text:               payload[payloadText].GetStringValue(),
				ExternalSourceName: payload[payloadSource].GetStringValue(),
				AdditionalMetadata: payload[payloadMetadata].GetStringValue(),
			},
		}
	}
	return hits, nil
}

// dimension returns a collection's vector size, from cache or by asking
// the store for collections created by an earlier process.
func (s *Store) dimension(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dims[collection]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection})
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("describe collection %s", collection), err)
	}
	size := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		return 0, fmt.Errorf("semantic: describe collection %s: no vector params: %w", collection, ErrCollectionNotFound)
	}

	dim = int(size)
	s.mu.Lock()
	s.dims[collection] = dim
	s.mu.Unlock()
	return dim, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

// wrapErr maps gRPC status codes onto the package's typed errors and
// prefixes the failed operation.
func wrapErr(op string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			err = fmt.Errorf("%w: %s", ErrCollectionNotFound, st.Message())
		case codes.AlreadyExists:
			err = fmt.Errorf("%w: %s", ErrCollectionExists, st.Message())
		case codes.Unavailable, codes.DeadlineExceeded:
			err = fmt.Errorf("%w: %s", ErrStoreUnavailable, st.Message())
		case codes.InvalidArgument:
			if strings.Contains(strings.ToLower(st.Message()), "dim") ||
				strings.Contains(strings.ToLower(st.Message()), "vector size") {
				err = fmt.Errorf("%w: %s", ErrDimensionMismatch, st.Message())
			}
		}
	}
	return fmt.Errorf("semantic: %s: %w", op, err)
}
