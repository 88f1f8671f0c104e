package model

import "time"

// Notification is a raw notification candidate delivered by the platform listener.
type Notification struct {
	PostedAt      time.Time `json:"postedAt"`
	Text          string    `json:"text"`
	SourcePackage string    `json:"sourcePackage"`
	GroupID       string    `json:"groupId"`
	UserID        string    `json:"userId"`
}

// UnparsedNotification is a notification the parser could not classify,
// kept so the user can enter it manually.
type UnparsedNotification struct {
	PostedAt      time.Time
	CreatedAt     time.Time
	ID            string
	GroupID       string
	UserID        string
	Text          string
	SourcePackage string
	Reason        string
}
