package model

// UserType is the account kind chosen at registration.
type UserType string

const (
	UserTypeParticipant    UserType = "PARTICIPANT"
	UserTypeNonParticipant UserType = "NON_PARTICIPANT"
)

// User is the identity resolved from the current session.
type User struct {
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	UserType    UserType `json:"user_type,omitempty"`
	Participant bool     `json:"is_participant"`
	Admin       bool     `json:"is_admin"`
}

// IsParticipant reports whether the user may register and manage devices.
func (u User) IsParticipant() bool {
	return u.Participant || u.UserType == UserTypeParticipant
}

// IsAdmin reports the admin-derived flag.
func (u User) IsAdmin() bool { return u.Admin }

// Credentials is the login form.
type Credentials struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// Registration is the sign-up form.
type Registration struct {
	Username  string   `json:"username" validate:"required,max=150"`
	Email     string   `json:"email" validate:"required,email"`
	Password1 string   `json:"password1" validate:"required,min=8"`
	Password2 string   `json:"password2" validate:"required,eqfield=Password1"`
	UserType  UserType `json:"user_type" validate:"required,oneof=PARTICIPANT NON_PARTICIPANT"`
}
