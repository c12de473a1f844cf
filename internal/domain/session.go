package domain

// AuthMode records how a session was established.
type AuthMode string

const (
	AuthBearer AuthMode = "bearer"
	AuthGuest  AuthMode = "guest"
)

// Session is the resolved caller identity for one request.
type Session struct {
	UserID string   `json:"userId"`
	Email  string   `json:"email,omitempty"`
	Role   Role     `json:"role"`
	Mode   AuthMode `json:"authMode"`
}
