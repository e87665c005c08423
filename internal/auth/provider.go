package auth

// TokenProvider issues and validates session tokens carrying a user id.
type TokenProvider interface {
	Issue(userID string) (string, error)
	Validate(token string) (*Claims, error)
}
