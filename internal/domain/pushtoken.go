package domain

import "time"

// Platform is the mobile OS a push endpoint belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool { return p == PlatformIOS || p == PlatformAndroid }

// PushToken is one (user, device) delivery endpoint. Tokens are soft-deleted only:
// deactivation clears IsActive and stamps DeactivatedAt, the row is kept for audit.
type PushToken struct {
	TokenID       string     `json:"id" dynamodbav:"token_id"`
	UserID        string     `json:"userId" dynamodbav:"user_id"`
	Token         string     `json:"-" dynamodbav:"token"`
	DeviceID      *string    `json:"deviceId,omitempty" dynamodbav:"device_id,omitempty"`
	Platform      Platform   `json:"platform" dynamodbav:"platform"`
	IsActive      bool       `json:"isActive" dynamodbav:"is_active"`
	CreatedAt     time.Time  `json:"createdAt" dynamodbav:"created_at"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty" dynamodbav:"deactivated_at,omitempty"`
}

// RegisterTokenRequest is the body of the token registration endpoint.
type RegisterTokenRequest struct {
	Token    string   `json:"token" validate:"required,max=512"`
	DeviceID *string  `json:"deviceId" validate:"omitempty,min=1,max=191"`
	Platform Platform `json:"platform" validate:"omitempty,oneof=ios android"`
}

// DeactivateTokenRequest is the body of the token deactivation endpoint.
type DeactivateTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

// PushMessage is the payload handed to the push transport.
type PushMessage struct {
	NotificationID int64            `json:"notificationId"`
	GroupKey       string           `json:"groupKey"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
}

// RegisterOutcome describes what a token registration did to the store.
type RegisterOutcome string

const (
	OutcomeCreated     RegisterOutcome = "created"
	OutcomeReactivated RegisterOutcome = "reactivated"
	OutcomeRotated     RegisterOutcome = "rotated"
)
