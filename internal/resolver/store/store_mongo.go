package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"praman/internal/did"
	"praman/internal/resolver/models"
	"praman/pkg/platform/sentinel"
)

// RegistrationsCollection is the MongoDB collection holding DID registrations.
const RegistrationsCollection = "did_registrations"

type registrationDocument struct {
	DID           string           `bson:"_id"`
	KeyType       string           `bson:"keyType"`
	PublicKey     []byte           `bson:"publicKey"`
	Services      []models.Service `bson:"services"`
	CreatedAt     time.Time        `bson:"createdAt"`
	UpdatedAt     time.Time        `bson:"updatedAt"`
	DeactivatedAt *time.Time       `bson:"deactivatedAt,omitempty"`
}

func toDocument(reg models.Registration) registrationDocument {
	return registrationDocument{
		DID:           reg.DID.String(),
		KeyType:       string(reg.KeyType),
		PublicKey:     reg.PublicKey,
		Services:      servicesOrEmpty(reg.Services),
		CreatedAt:     reg.CreatedAt.UTC(),
		UpdatedAt:     reg.UpdatedAt.UTC(),
		DeactivatedAt: reg.DeactivatedAt,
	}
}

func (d registrationDocument) registration() models.Registration {
	reg := models.Registration{
		DID:       did.DID(d.DID),
		KeyType:   models.KeyType(d.KeyType),
		PublicKey: d.PublicKey,
		Services:  d.Services,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if len(reg.Services) == 0 {
		reg.Services = nil
	}
	if d.DeactivatedAt != nil {
		t := d.DeactivatedAt.UTC()
		reg.DeactivatedAt = &t
	}
	return reg
}

// MongoStore persists registrations keyed by DID in MongoDB.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(RegistrationsCollection)}
}

func (s *MongoStore) Save(ctx context.Context, reg models.Registration) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(reg)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByDID(ctx context.Context, d did.DID) (models.Registration, error) {
	var doc registrationDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": d.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Registration{}, sentinel.ErrNotFound
		}
		return models.Registration{}, fmt.Errorf("find registration: %w", err)
	}
	return doc.registration(), nil
}

// Deactivate only matches active documents, then falls back to a read so a
// repeated call returns the stored deactivation time.
func (s *MongoStore) Deactivate(ctx context.Context, d did.DID, at time.Time) (models.Registration, error) {
	at = at.UTC()
	filter := bson.M{"_id": d.String(), "deactivatedAt": bson.M{"$exists": false}}
	update := bson.M{"$set": bson.M{"deactivatedAt": at, "updatedAt": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc registrationDocument
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	switch {
	case err == nil:
		return doc.registration(), nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return s.FindByDID(ctx, d)
	default:
		return models.Registration{}, fmt.Errorf("deactivate registration: %w", err)
	}
}
