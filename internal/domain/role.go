package domain

// Role names carried in session claims.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Caller is the authenticated principal a service acts for.
type Caller struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller carries administrator privilege.
func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }
