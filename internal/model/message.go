package model

import "time"

// Message is a direct message as stored.
//
// ReadAt is nil until the recipient marks the message read; after that it
// never changes.
type Message struct {
	ID           string     `json:"id"`
	FromUsername string     `json:"from_username"`
	ToUsername   string     `json:"to_username"`
	Body         string     `json:"body"`
	SentAt       time.Time  `json:"sent_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

// MessageDetail is a message joined with both participants' public profiles.
type MessageDetail struct {
	ID       string      `json:"id"`
	Body     string      `json:"body"`
	SentAt   time.Time   `json:"sent_at"`
	ReadAt   *time.Time  `json:"read_at"`
	FromUser UserProfile `json:"from_user"`
	ToUser   UserProfile `json:"to_user"`
}

// SentMessage is one row of a user's outbox, enriched with the recipient.
type SentMessage struct {
	ID     string      `json:"id"`
	Body   string      `json:"body"`
	SentAt time.Time   `json:"sent_at"`
	ReadAt *time.Time  `json:"read_at"`
	ToUser UserProfile `json:"to_user"`
}

// ReceivedMessage is one row of a user's inbox, enriched with the sender.
type ReceivedMessage struct {
	ID       string      `json:"id"`
	Body     string      `json:"body"`
	SentAt   time.Time   `json:"sent_at"`
	ReadAt   *time.Time  `json:"read_at"`
	FromUser UserProfile `json:"from_user"`
}

// ReadReceipt is what marking a message read reports back.
type ReadReceipt struct {
	ID     string    `json:"id"`
	ReadAt time.Time `json:"read_at"`
}
