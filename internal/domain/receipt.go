package domain

import "time"

// GroupWideRecipient is the receipt user id that applies to every recipient of a group.
// It is written when a notification with SingleReadDismissal is dismissed.
const GroupWideRecipient = "*"

// Receipt is the read/dismissal state of one recipient (or GroupWideRecipient) for one group.
type Receipt struct {
	GroupKey    string     `json:"groupKey" dynamodbav:"group_key"`
	UserID      string     `json:"userId" dynamodbav:"user_id"`
	ReadAt      *time.Time `json:"readAt,omitempty" dynamodbav:"read_at,omitempty"`
	DismissedAt *time.Time `json:"dismissedAt,omitempty" dynamodbav:"dismissed_at,omitempty"`
}

// ReceiptState merges the per-recipient and group-wide receipts of a group.
type ReceiptState struct {
	Read      bool
	Dismissed bool
}

// Merge folds r into s.
func (s ReceiptState) Merge(r Receipt) ReceiptState {
	if r.ReadAt != nil {
		s.Read = true
	}
	if r.DismissedAt != nil {
		s.Dismissed = true
		s.Read = true
	}
	return s
}
