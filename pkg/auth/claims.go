package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Actor is the authenticated caller: a user acting for one organization.
type Actor struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
}

// Valid reports whether both identifiers are present.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.OrganizationID != uuid.Nil
}

// Owns reports whether the actor acts for organizationID.
func (a Actor) Owns(organizationID uuid.UUID) bool {
	return a.OrganizationID != uuid.Nil && a.OrganizationID == organizationID
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	jwt.RegisteredClaims
}

// Actor projects the claims onto an Actor.
func (c AccessTokenClaims) Actor() Actor {
	return Actor{UserID: c.UserID, OrganizationID: c.OrganizationID}
}
