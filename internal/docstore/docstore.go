// Package docstore implements store.Store on MongoDB. The persisted layout is
// two top-level collections, users keyed by user id and linked_bots keyed by
// credential, plus the link_intents journal.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/zunhub/zun/internal/store"
)

// Collection name constants.
const (
	colUsers       = "users"
	colLinkedBots  = "linked_bots"
	colLinkIntents = "link_intents"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Credentials is the structured credential blob accepted from configuration.
type Credentials struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	AuthSource string `json:"auth_source"`
}

// ParseCredentials decodes a JSON credential blob. An empty blob yields nil.
func ParseCredentials(raw string) (*Credentials, error) {
	if raw == "" {
		return nil, nil
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("failed to parse store credentials: %w", err)
	}
	if creds.Username == "" {
		return nil, errors.New("store credentials: username is required")
	}
	return &creds, nil
}

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, uri, database string, creds *Credentials) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetServerSelectionTimeout(5 * time.Second)

	if creds != nil {
		opts.SetAuth(options.Credential{
			Username:   creds.Username,
			Password:   creds.Password,
			AuthSource: creds.AuthSource,
		})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Migrate creates the secondary indexes.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colLinkedBots: {
			{Keys: bson.D{{Key: "owner_user_id", Value: 1}}},
		},
		colLinkIntents: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("docstore: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) users() *mongo.Collection       { return s.db.Collection(colUsers) }
func (s *Store) linkedBots() *mongo.Collection  { return s.db.Collection(colLinkedBots) }
func (s *Store) linkIntents() *mongo.Collection { return s.db.Collection(colLinkIntents) }

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// afterUpdate returns the post-update document from FindOneAndUpdate.
func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}
