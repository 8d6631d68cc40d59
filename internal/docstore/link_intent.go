package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

func (s *Store) CreateLinkIntent(ctx context.Context, intent *model.LinkIntent) error {
	if _, err := s.linkIntents().InsertOne(ctx, toLinkIntentDoc(intent)); err != nil {
		return fmt.Errorf("docstore: create link intent: %w", err)
	}
	return nil
}

func (s *Store) UpdateLinkIntent(ctx context.Context, intent *model.LinkIntent) error {
	res, err := s.linkIntents().UpdateOne(ctx,
		bson.M{"_id": intent.ID},
		bson.M{"$set": bson.M{
			"status":          string(intent.Status),
			"attempts":        intent.Attempts,
			"last_error":      intent.LastError,
			"next_attempt_at": intent.NextAttemptAt.UTC(),
			"updated_at":      intent.UpdatedAt.UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("docstore: update link intent: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrLinkIntentNotFound
	}
	return nil
}

func (s *Store) GetLinkIntent(ctx context.Context, id string) (*model.LinkIntent, error) {
	var d linkIntentDoc
	err := s.linkIntents().FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrLinkIntentNotFound
		}
		return nil, fmt.Errorf("docstore: get link intent: %w", err)
	}
	return fromLinkIntentDoc(&d), nil
}

func (s *Store) ListDueLinkIntents(ctx context.Context, now, createdBefore time.Time, limit int) ([]*model.LinkIntent, error) {
	filter := bson.M{
		"status":          string(model.LinkIntentPending),
		"created_at":      bson.M{"$lt": createdBefore.UTC()},
		"next_attempt_at": bson.M{"$lte": now.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cur, err := s.linkIntents().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: list link intents: %w", err)
	}

	var docs []linkIntentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("docstore: decode link intents: %w", err)
	}

	intents := make([]*model.LinkIntent, len(docs))
	for i := range docs {
		intents[i] = fromLinkIntentDoc(&docs[i])
	}
	return intents, nil
}
