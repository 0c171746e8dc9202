package dto

import "github.com/google/uuid"

// Identity is what a verified credential proves about its holder.
type Identity struct {
	EventCode     string
	ParticipantID uuid.UUID
	IsAdmin       bool
}

// Credential is a freshly issued signed token together with the identity it carries.
type Credential struct {
	Token    string
	Identity Identity
}
