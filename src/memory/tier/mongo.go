package tier

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hearthside/memoryd/src/memory/model"
)

const mongoCloseTimeout = 5 * time.Second

// MongoIndex implements VectorIndex on MongoDB Atlas vector search. It is
// the alternate backend for deployments that already run Atlas; the default
// is Qdrant.
type MongoIndex struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoIndex connects to MongoDB and returns an Atlas-backed VectorIndex.
// The collection must carry a vector search index named "vector_index" over
// the "embedding" path.
func NewMongoIndex(ctx context.Context, uri, database, collection string) (*MongoIndex, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoIndex{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

// Upsert writes one point keyed by the caller-supplied identifier.
func (mi *MongoIndex) Upsert(ctx context.Context, id string, embedding []float32, payload map[string]any) error {
	if mi == nil || mi.collection == nil {
		return errors.New("nil mongo index")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	doc := bson.M{
		"_id":       id,
		"embedding": float64Embedding(embedding),
		"payload":   payload,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := mi.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	return err
}

// Search runs $vectorSearch and applies exact-match payload filters.
func (mi *MongoIndex) Search(ctx context.Context, embedding []float32, limit int, filter map[string]any) ([]model.SemanticHit, error) {
	if mi == nil || mi.collection == nil {
		return nil, errors.New("nil mongo index")
	}
	if limit <= 0 {
		return []model.SemanticHit{}, nil
	}

	pipeline := mongo.Pipeline{
		{
			{Key: "$vectorSearch", Value: bson.D{
				{Key: "index", Value: "vector_index"},
				{Key: "path", Value: "embedding"},
				{Key: "queryVector", Value: float64Embedding(embedding)},
				{Key: "numCandidates", Value: int64(limit * 10)}, // oversample for accuracy
				{Key: "limit", Value: int64(limit)},
			}},
		},
		{
			{Key: "$addFields", Value: bson.D{
				{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
			}},
		},
	}
	if len(filter) > 0 {
		match := bson.D{}
		for key, value := range filter {
			match = append(match, bson.E{Key: "payload." + key, Value: value})
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	cursor, err := mi.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	hits := make([]model.SemanticHit, 0, limit)
	for cursor.Next(ctx) {
		var doc struct {
			ID      string         `bson:"_id"`
			Payload map[string]any `bson:"payload"`
			Score   float64        `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if doc.Payload == nil {
			doc.Payload = map[string]any{}
		}
		content, _ := doc.Payload["content"].(string)
		hits = append(hits, model.SemanticHit{
			ID:      doc.ID,
			Score:   doc.Score,
			Content: content,
			Payload: doc.Payload,
		})
	}
	return hits, cursor.Err()
}

// Close disconnects the Mongo client.
func (mi *MongoIndex) Close() error {
	if mi == nil || mi.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return mi.client.Disconnect(ctx)
}

func float64Embedding(embedding []float32) []float64 {
	out := make([]float64, len(embedding))
	for i, v := range embedding {
		out[i] = float64(v)
	}
	return out
}
