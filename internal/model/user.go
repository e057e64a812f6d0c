// Package model defines the data structures used throughout the application.
// The `json:"..."` struct tags set the wire names the HTTP API exposes.
package model

import "time"

// User is a registered account as stored.
//
// Password holds the adaptive hash, never the plaintext. The json:"-" tag
// keeps it out of every response even if a handler encodes a User directly.
type User struct {
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Phone       string    `json:"phone"`
	JoinAt      time.Time `json:"join_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}

// UserProfile is the public projection of a user: what other users may see,
// and what message listings embed for the counterpart.
type UserProfile struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// Profile returns the public projection of u.
func (u *User) Profile() UserProfile {
	return UserProfile{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Phone:     u.Phone,
	}
}

// NewUser carries the registration fields. Password is plaintext here and is
// hashed before it reaches the store.
type NewUser struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}
