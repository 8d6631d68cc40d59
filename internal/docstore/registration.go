package docstore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

func (s *Store) CreateRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	_, err := s.linkedBots().InsertOne(ctx, toRegistrationDoc(reg))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrRegistrationExists
		}
		return fmt.Errorf("docstore: create registration: %w", err)
	}
	return nil
}

func (s *Store) UpsertRegistration(ctx context.Context, reg *model.CredentialRegistration) error {
	_, err := s.linkedBots().ReplaceOne(ctx,
		bson.M{"_id": reg.Credential},
		toRegistrationDoc(reg),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("docstore: upsert registration: %w", err)
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, credential string) (*model.CredentialRegistration, error) {
	var d registrationDoc
	err := s.linkedBots().FindOne(ctx, bson.M{"_id": credential}).Decode(&d)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("docstore: get registration: %w", err)
	}
	return fromRegistrationDoc(&d), nil
}
