package domain

import "time"

// Project is a named grouping of tasks owned by one account.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
}

// Account is a registered user of the board.
type Account struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Verified          bool      `json:"verified"`
	VerificationToken string    `json:"-"`
	ResetToken        string    `json:"-"`
	ResetExpiresAt    time.Time `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
}
