package model

import "time"

// CredentialRegistration records which account linked a credential.
// OwnerUserID is a lookup relation back to the account, not an ownership edge.
type CredentialRegistration struct {
	Credential   string    `json:"-"` // Secret - never serialize
	OwnerUserID  string    `json:"owner_user_id"`
	BotUsername  string    `json:"bot_username"`
	DisplayName  string    `json:"display_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Handle returns the @username form used in replies.
func (r *CredentialRegistration) Handle() string {
	if r.BotUsername == "" {
		return ""
	}
	return "@" + r.BotUsername
}
