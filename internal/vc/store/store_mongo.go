package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"praman/internal/vc/models"
	"praman/pkg/platform/sentinel"
)

// RevocationsCollection is the MongoDB collection holding revocation entries.
const RevocationsCollection = "credential_revocations"

type revocationDocument struct {
	CredentialID string    `bson:"_id"`
	IssuerDID    string    `bson:"issuerDid"`
	Reason       string    `bson:"reason,omitempty"`
	RevokedAt    time.Time `bson:"revokedAt"`
}

// MongoStore persists revocations keyed by credential id in MongoDB.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(RevocationsCollection)}
}

func (s *MongoStore) Save(ctx context.Context, revocation models.Revocation) error {
	doc := revocationDocument{
		CredentialID: revocation.CredentialID.String(),
		IssuerDID:    revocation.IssuerDID,
		Reason:       revocation.Reason,
		RevokedAt:    revocation.RevokedAt.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("save revocation: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, id models.CredentialID) (models.Revocation, error) {
	var doc revocationDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Revocation{}, sentinel.ErrNotFound
		}
		return models.Revocation{}, fmt.Errorf("find revocation: %w", err)
	}
	return models.Revocation{
		CredentialID: models.CredentialID(doc.CredentialID),
		IssuerDID:    doc.IssuerDID,
		Reason:       doc.Reason,
		RevokedAt:    doc.RevokedAt.UTC(),
	}, nil
}
