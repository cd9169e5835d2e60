package queue

// Routing keys on the auth exchange.
const (
	KeyUserRegistered = "user.registered"
	KeyUserLoggedIn   = "user.logged_in"
	KeyEmailRequested = "email.requested"
)

type UserRegistered struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

type UserLoggedIn struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
}

// EmailRequested asks the delivery worker to render and send one templated
// email. Template is the verification token type.
type EmailRequested struct {
	To       string `json:"to"`
	Template string `json:"template"`
	Link     string `json:"link"`
}
