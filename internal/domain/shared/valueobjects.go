// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ══════════════════════════════════════════════════════════════════════════════

// UserID identifies the owner of a progression record. The identity store
// assigns it; the engine only validates the shape.
type UserID string

// Allowed user id characters: opaque ids, UUIDs, and emails-as-ids.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.@:-]{0,127}$`)

// IsValid checks if the user ID is well-formed.
func (u UserID) IsValid() bool {
	return userIDRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.TrimSpace(id))
	if !uid.IsValid() {
		return "", NewDomainError("shared", "NewUserID", ErrValidation, "invalid user ID format")
	}
	return uid, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ══════════════════════════════════════════════════════════════════════════════

// XP is lifetime-total experience. It only grows.
type XP int

// MinXP is the floor of every XP value.
const MinXP XP = 0

// IsValid checks if the XP value is non-negative.
func (x XP) IsValid() bool {
	return x >= MinXP
}

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// Add returns x plus a non-negative amount.
func (x XP) Add(amount int) (XP, error) {
	if amount < 0 {
		return x, ErrInvalidXP
	}
	return x + XP(amount), nil
}

// NewXP creates a new XP value with validation.
func NewXP(amount int) (XP, error) {
	if amount < int(MinXP) {
		return 0, NewDomainError("shared", "NewXP", ErrValidation, "XP cannot be negative")
	}
	return XP(amount), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Level Value Object
// ══════════════════════════════════════════════════════════════════════════════

// Level is a user's level, always derived from lifetime XP.
type Level int

// MinLevel is the level every record is seeded with.
const MinLevel Level = 1

// IsValid checks if the level is at least MinLevel.
func (l Level) IsValid() bool {
	return l >= MinLevel
}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// Title returns a human-readable title for the level.
func (l Level) Title() string {
	switch {
	case l < 3:
		return "Sketcher"
	case l < 6:
		return "Apprentice"
	case l < 10:
		return "Illustrator"
	case l < 20:
		return "Artist"
	case l < 35:
		return "Virtuoso"
	default:
		return "Master"
	}
}
