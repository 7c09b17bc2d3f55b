package domain

// User is the authenticated caller as resolved from the session token.
type User struct {
	ID    string
	Name  string
	Email string
}
