package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/researchlab/labsite/internal/content"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// siteDocID is the _id of the single Mongo document holding the site content.
const siteDocID = "site"

// storedDocument is the Mongo representation of the content document. The JSON
// text is kept verbatim so numbers and key order survive a round trip.
type storedDocument struct {
	ID        string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoRepo stores the content document in a Mongo collection, for deployments
// without a writable disk.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Load(ctx context.Context) (content.Document, error) {
	var d storedDocument
	err := m.col.FindOne(ctx, bson.M{"_id": siteDocID}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		if err := m.Save(ctx, content.Document{}); err != nil {
			return nil, err
		}
		return content.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo load content: %w", err)
	}
	return parse([]byte(d.Payload))
}

func (m *MongoRepo) Save(ctx context.Context, doc content.Document) error {
	b, err := render(doc)
	if err != nil {
		return err
	}
	rec := storedDocument{ID: siteDocID, Payload: string(b), UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := m.col.ReplaceOne(ctx, bson.M{"_id": siteDocID}, rec, opts); err != nil {
		return fmt.Errorf("mongo save content: %w", err)
	}
	return nil
}
