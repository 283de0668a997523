package models

import "time"

type RefreshToken struct {
	ID         string
	IdentityID int64
	Token      string
	Expires    time.Time
	CreatedAt  time.Time
}
