package types

import "time"

// User represents a registered account.
type User struct {
	// ID is the opaque identifier assigned by the store on creation.
	ID string `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// Email is the user's address, stored lower-cased. Unique across users.
	Email string `json:"email" db:"email"`

	// Avatar is the image URL derived from the email.
	Avatar string `json:"avatar" db:"avatar"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Date is the timestamp when the account was created.
	Date time.Time `json:"date" db:"created_at"`
}

// Profile is the public view of a User returned by the identity query.
// It carries no password material.
type Profile struct {
	ID     string    `json:"_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Avatar string    `json:"avatar"`
	Date   time.Time `json:"date"`
}

// Profile returns the public view of u.
func (u User) Profile() Profile {
	return Profile{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
		Date:   u.Date,
	}
}
