package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/zunhub/zun/internal/model"
	"github.com/zunhub/zun/internal/store"
)

func (s *Store) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var d accountDoc
	err := s.users().FindOne(ctx, bson.M{"_id": userID}).Decode(&d)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("docstore: get account: %w", err)
	}
	return fromAccountDoc(&d), nil
}

// CreateAccount upserts with $setOnInsert so an existing record is returned
// untouched.
func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) (*model.Account, error) {
	doc := toAccountDoc(acc)
	update := bson.M{"$setOnInsert": bson.M{
		"balance":            doc.Balance,
		"linked_credentials": doc.LinkedCredentials,
		"total_requests":     doc.TotalRequests,
		"last_reset_at":      doc.LastResetAt,
		"created_at":         doc.CreatedAt,
	}}

	var d accountDoc
	err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": acc.UserID}, update,
		afterUpdate().SetUpsert(true),
	).Decode(&d)
	if err != nil {
		// Two concurrent upserts on the same _id: the loser reads the winner's row.
		if mongo.IsDuplicateKeyError(err) {
			return s.GetAccount(ctx, acc.UserID)
		}
		return nil, fmt.Errorf("docstore: create account: %w", err)
	}
	return fromAccountDoc(&d), nil
}

func (s *Store) ChargeAccount(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	filter := bson.M{"_id": userID, "balance": bson.M{"$gte": amount}}
	update := bson.M{"$inc": bson.M{"balance": -amount, "total_requests": 1}}

	return s.conditionalUpdate(ctx, userID, filter, update, store.ErrInsufficientBalance, "charge account")
}

func (s *Store) CreditAccount(ctx context.Context, userID string, amount float64) (*model.Account, error) {
	var d accountDoc
	err := s.users().FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"balance": amount}},
		afterUpdate(),
	).Decode(&d)
	if err != nil {
		if isNoDocuments(err) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("docstore: credit account: %w", err)
	}
	return fromAccountDoc(&d), nil
}

// ResetAccount uses an update pipeline so the credit is computed from the
// credential count stored at the moment of the update.
func (s *Store) ResetAccount(ctx context.Context, userID string, dueBefore, now time.Time, bonusUnit float64) (*model.Account, error) {
	filter := bson.M{"_id": userID, "last_reset_at": bson.M{"$lt": dueBefore.UTC()}}

	credit := bson.M{"$multiply": bson.A{
		bson.M{"$size": bson.M{"$ifNull": bson.A{"$linked_credentials", bson.A{}}}},
		bonusUnit,
	}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "balance", Value: bson.M{"$add": bson.A{"$balance", credit}}},
			{Key: "last_reset_at", Value: now.UTC()},
		}}},
	}

	return s.conditionalUpdate(ctx, userID, filter, update, store.ErrResetNotDue, "reset account")
}

func (s *Store) AppendCredential(ctx context.Context, userID, credential string, bonus float64) (*model.Account, error) {
	filter := bson.M{"_id": userID, "linked_credentials": bson.M{"$ne": credential}}
	update := bson.M{
		"$push": bson.M{"linked_credentials": credential},
		"$inc":  bson.M{"balance": bonus},
	}

	return s.conditionalUpdate(ctx, userID, filter, update, store.ErrCredentialLinked, "append credential")
}

// conditionalUpdate runs FindOneAndUpdate and, when nothing matched, tells a
// missing account apart from a failed condition.
func (s *Store) conditionalUpdate(ctx context.Context, userID string, filter, update any, reject error, op string) (*model.Account, error) {
	var d accountDoc
	err := s.users().FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&d)
	if err == nil {
		return fromAccountDoc(&d), nil
	}
	if !isNoDocuments(err) {
		return nil, fmt.Errorf("docstore: %s: %w", op, err)
	}

	n, err := s.users().CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("docstore: %s: check account: %w", op, err)
	}
	if n == 0 {
		return nil, store.ErrAccountNotFound
	}
	return nil, reject
}
