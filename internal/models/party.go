package models

import (
	"errors"
	"fmt"
	"strings"
)

// PartyKind tags which identifier a PartyRef carries.
type PartyKind string

const (
	PartyRegistered PartyKind = "registered"
	PartyGuest      PartyKind = "guest"
)

// PartyRef identifies a booking party: either a registered user or a demo/guest session.
// Exactly one of UserID and GuestID is set, matching Kind.
type PartyRef struct {
	Kind    PartyKind `bson:"kind" json:"kind"`
	UserID  int64     `bson:"userId,omitempty" json:"userId,omitempty"`
	GuestID string    `bson:"guestId,omitempty" json:"guestId,omitempty"`
}

func Registered(userID int64) PartyRef {
	return PartyRef{Kind: PartyRegistered, UserID: userID}
}

func Guest(guestID string) PartyRef {
	return PartyRef{Kind: PartyGuest, GuestID: strings.TrimSpace(guestID)}
}

var (
	errPartyEmpty     = errors.New("party reference is empty")
	errPartyAmbiguous = errors.New("party reference carries both a user id and a guest id")
)

// Validate enforces that exactly one identifier is set and agrees with Kind.
func (p PartyRef) Validate() error {
	switch p.Kind {
	case PartyRegistered:
		if p.GuestID != "" {
			return errPartyAmbiguous
		}
		if p.UserID <= 0 {
			return errPartyEmpty
		}
	case PartyGuest:
		if p.UserID != 0 {
			return errPartyAmbiguous
		}
		if p.GuestID == "" {
			return errPartyEmpty
		}
	case "":
		return errPartyEmpty
	default:
		return fmt.Errorf("unknown party kind %q", p.Kind)
	}
	return nil
}

// IsZero reports whether no party is referenced.
func (p PartyRef) IsZero() bool {
	return p.Kind == "" && p.UserID == 0 && p.GuestID == ""
}

// Equal compares two references by tag first, then by the tag's identifier.
func (p PartyRef) Equal(o PartyRef) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case PartyRegistered:
		return p.UserID == o.UserID && p.UserID != 0
	case PartyGuest:
		return p.GuestID == o.GuestID && p.GuestID != ""
	}
	return false
}

func (p PartyRef) String() string {
	switch p.Kind {
	case PartyRegistered:
		return fmt.Sprintf("user:%d", p.UserID)
	case PartyGuest:
		return "guest:" + p.GuestID
	}
	return "unknown"
}
