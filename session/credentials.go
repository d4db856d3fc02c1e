package session

import (
	"fmt"

	"github.com/google/uuid"
)

// Credential identifies an agent to the avatar platform. It is created at
// provisioning time, never mutated, and used exactly once for registration
// and once per authentication call.
type Credential struct {
	Username string
	Email    string
	Password string
}

// Profile is the avatar profile submitted alongside a registration.
type Profile struct {
	FirstName  string
	LastName   string
	AvatarType string
}

// DefaultProfile returns an agent-typed profile.
func DefaultProfile(firstName, lastName string) Profile {
	return Profile{
		FirstName:  firstName,
		LastName:   lastName,
		AvatarType: "Agent",
	}
}

// NewRandomCredential generates a unique demo credential. The username embeds
// a uuid fragment so repeated runs against a persistent identity store do not
// collide.
func NewRandomCredential(prefix, password string) Credential {
	suffix := uuid.NewString()[:8]
	username := fmt.Sprintf("%s_%s", prefix, suffix)
	return Credential{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	}
}
