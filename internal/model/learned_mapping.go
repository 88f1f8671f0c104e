package model

import "time"

// LearnedMapping is a user-taught merchant to category association.
// At most one mapping exists per (GroupID, MerchantName, TransactionType).
type LearnedMapping struct {
	LastUsedAt           time.Time
	CreatedAt            time.Time
	ID                   string
	GroupID              string
	MerchantName         string // Normalized form
	OriginalMerchantName string
	Category             Category
	TransactionType      TransactionType
	UseCount             int
}
