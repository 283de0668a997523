// Package models defines the typed records exchanged between repositories
// and services. Repositories own the mapping between nullable table columns
// and these values; services never see database/sql types.
package models

import "time"

// Identity is one account row. Optional columns are represented as empty
// strings; at least one of PasswordHash or ExternalProviderID is always set.
type Identity struct {
	ID                 int64
	Email              string
	PasswordHash       string
	ExternalProviderID string
	Username           string
	AvatarKey          string
	TwoFASecret        string
	TwoFAEnabled       bool
	CreatedAt          time.Time
}

// HasPassword reports whether the identity can authenticate with a password.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != ""
}

// NeedsSetup reports whether the profile step (username) is still pending.
func (i *Identity) NeedsSetup() bool {
	return i.Username == ""
}
