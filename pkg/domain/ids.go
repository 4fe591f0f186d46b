package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "prodir/pkg/domain-errors"
)

// ProfileID identifies a profile draft and, one-to-one, its published snapshot.
type ProfileID uuid.UUID

// ReviewID identifies a single review document.
type ReviewID uuid.UUID

// UserID is the stable subject returned by the identity provider. Providers
// are free to use non-UUID subjects, so it stays a string.
type UserID string

// NewProfileID returns a fresh random profile id.
func NewProfileID() ProfileID { return ProfileID(uuid.New()) }

// NewReviewID returns a fresh random review id.
func NewReviewID() ReviewID { return ReviewID(uuid.New()) }

func (id ProfileID) String() string { return uuid.UUID(id).String() }
func (id ProfileID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ProfileID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ProfileID) UnmarshalText(b []byte) error {
	parsed, err := ParseProfileID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ReviewID) String() string { return uuid.UUID(id).String() }
func (id ReviewID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ReviewID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

func (id *ReviewID) UnmarshalText(b []byte) error {
	parsed, err := parseUUID(string(b), "review id")
	if err != nil {
		return err
	}
	*id = ReviewID(parsed)
	return nil
}

func (id UserID) String() string { return string(id) }
func (id UserID) IsEmpty() bool  { return strings.TrimSpace(string(id)) == "" }

// ParseProfileID parses a profile id at a trust boundary. Empty, malformed
// and nil UUIDs are rejected.
func ParseProfileID(s string) (ProfileID, error) {
	parsed, err := parseUUID(s, "profile id")
	if err != nil {
		return ProfileID{}, err
	}
	return ProfileID(parsed), nil
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, what+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, "invalid "+what)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, what+" must not be nil")
	}
	return parsed, nil
}
