package auth

import "github.com/golang-jwt/jwt/v5"

// RoleAdmin is the only role the back office issues.
const RoleAdmin = "admin"

// AdminTokenPayload captures the data available when minting a JWT.
type AdminTokenPayload struct {
	Email string
	JTI   string
}

// AdminClaims is the typed JWT handed to the back office.
type AdminClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}
