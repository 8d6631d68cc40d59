package docstore

import (
	"time"

	"github.com/zunhub/zun/internal/model"
)

type accountDoc struct {
	UserID            string    `bson:"_id"`
	Balance           float64   `bson:"balance"`
	LinkedCredentials []string  `bson:"linked_credentials"`
	TotalRequests     int64     `bson:"total_requests"`
	LastResetAt       time.Time `bson:"last_reset_at"`
	CreatedAt         time.Time `bson:"created_at"`
}

func toAccountDoc(a *model.Account) *accountDoc {
	creds := a.LinkedCredentials
	if creds == nil {
		creds = []string{}
	}
	return &accountDoc{
		UserID:            a.UserID,
		Balance:           a.Balance,
		LinkedCredentials: creds,
		TotalRequests:     a.TotalRequests,
		LastResetAt:       a.LastResetAt.UTC(),
		CreatedAt:         a.CreatedAt.UTC(),
	}
}

func fromAccountDoc(d *accountDoc) *model.Account {
	creds := d.LinkedCredentials
	if creds == nil {
		creds = []string{}
	}
	return &model.Account{
		UserID:            d.UserID,
		Balance:           d.Balance,
		LinkedCredentials: creds,
		TotalRequests:     d.TotalRequests,
		LastResetAt:       d.LastResetAt,
		CreatedAt:         d.CreatedAt,
	}
}

type registrationDoc struct {
	Credential   string    `bson:"_id"`
	OwnerUserID  string    `bson:"owner_user_id"`
	BotUsername  string    `bson:"bot_username"`
	DisplayName  string    `bson:"bot_name"`
	RegisteredAt time.Time `bson:"linked_at"`
}

func toRegistrationDoc(r *model.CredentialRegistration) *registrationDoc {
	return &registrationDoc{
		Credential:   r.Credential,
		OwnerUserID:  r.OwnerUserID,
		BotUsername:  r.BotUsername,
		DisplayName:  r.DisplayName,
		RegisteredAt: r.RegisteredAt.UTC(),
	}
}

func fromRegistrationDoc(d *registrationDoc) *model.CredentialRegistration {
	return &model.CredentialRegistration{
		Credential:   d.Credential,
		OwnerUserID:  d.OwnerUserID,
		BotUsername:  d.BotUsername,
		DisplayName:  d.DisplayName,
		RegisteredAt: d.RegisteredAt,
	}
}

type linkIntentDoc struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	Credential    string    `bson:"credential"`
	BotUsername   string    `bson:"bot_username"`
	DisplayName   string    `bson:"display_name"`
	Bonus         float64   `bson:"bonus"`
	Status        string    `bson:"status"`
	Attempts      int       `bson:"attempts"`
	LastError     string    `bson:"last_error,omitempty"`
	NextAttemptAt time.Time `bson:"next_attempt_at"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func toLinkIntentDoc(i *model.LinkIntent) *linkIntentDoc {
	return &linkIntentDoc{
		ID:            i.ID,
		UserID:        i.UserID,
		Credential:    i.Credential,
		BotUsername:   i.BotUsername,
		DisplayName:   i.DisplayName,
		Bonus:         i.Bonus,
		Status:        string(i.Status),
		Attempts:      i.Attempts,
		LastError:     i.LastError,
		NextAttemptAt: i.NextAttemptAt.UTC(),
		CreatedAt:     i.CreatedAt.UTC(),
		UpdatedAt:     i.UpdatedAt.UTC(),
	}
}

func fromLinkIntentDoc(d *linkIntentDoc) *model.LinkIntent {
	return &model.LinkIntent{
		ID:            d.ID,
		UserID:        d.UserID,
		Credential:    d.Credential,
		BotUsername:   d.BotUsername,
		DisplayName:   d.DisplayName,
		Bonus:         d.Bonus,
		Status:        model.LinkIntentStatus(d.Status),
		Attempts:      d.Attempts,
		LastError:     d.LastError,
		NextAttemptAt: d.NextAttemptAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
