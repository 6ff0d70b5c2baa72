package account

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
