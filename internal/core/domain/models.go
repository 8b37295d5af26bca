package domain

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the payload for POST /auth/register.
// Role is optional and defaults to USER; creating a SUPER_USER requires
// a super-user session.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

// User is the public user representation returned by the API.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// AuthResponse carries a session token and the authenticated user.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterServerRequest is the payload for POST /servers.
type RegisterServerRequest struct {
	HostURL  string `json:"hostUrl" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsSource bool   `json:"isSource"`
}

// ServerSummary is the public representation of a registered server.
// The stored secret is never returned.
type ServerSummary struct {
	ID       int    `json:"id"`
	HostURL  string `json:"hostUrl"`
	Email    string `json:"email"`
	IsSource bool   `json:"isSource"`
}
