package model

import "time"

// LinkIntentStatus represents where a link intent is in its lifecycle.
type LinkIntentStatus string

// LinkIntentStatus constants.
const (
	LinkIntentPending   LinkIntentStatus = "pending"
	LinkIntentCompleted LinkIntentStatus = "completed"
	LinkIntentRejected  LinkIntentStatus = "rejected"
)

// LinkIntent journals a link before its two writes (account update and
// registration record) are applied, so a crash between them can be rolled forward.
type LinkIntent struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Credential    string           `json:"-"`
	BotUsername   string           `json:"bot_username"`
	DisplayName   string           `json:"display_name"`
	Bonus         float64          `json:"bonus"`
	Status        LinkIntentStatus `json:"status"`
	Attempts      int              `json:"attempts"`
	LastError     string           `json:"last_error,omitempty"`
	NextAttemptAt time.Time        `json:"next_attempt_at"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IsPending returns true while the intent still needs to be applied.
func (i *LinkIntent) IsPending() bool {
	return i.Status == LinkIntentPending
}

// Registration builds the registration record this intent will write.
func (i *LinkIntent) Registration(registeredAt time.Time) *CredentialRegistration {
	return &CredentialRegistration{
		Credential:   i.Credential,
		OwnerUserID:  i.UserID,
		BotUsername:  i.BotUsername,
		DisplayName:  i.DisplayName,
		RegisteredAt: registeredAt,
	}
}
