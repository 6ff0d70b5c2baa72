package verification

import "time"

type Token struct {
	Value     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
