package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the member's privilege level within the club.
type Role string

const (
	RoleMember    Role = "MEMBER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// MembershipType determines whether and how much a member is billed.
type MembershipType string

const (
	MembershipStandard MembershipType = "STANDARD"
	MembershipStudent  MembershipType = "STUDENT"
	MembershipHonorary MembershipType = "HONORARY"
)

// RequiresFee reports whether the membership type is billed a recurring fee.
// Honorary members are exempt.
func (m MembershipType) RequiresFee() bool {
	return m == MembershipStandard || m == MembershipStudent
}

// Member is a club account independent of the identity provider.
//
// Sign convention: Balance is the signed sum of the member's transactions.
// A positive transaction amount is income to the club credited on the
// member's ledger, so a negative balance means the member owes the club.
// Balance is mutated only through the ledger service.
type Member struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Role           Role            `json:"role"`
	MembershipType MembershipType  `json:"membership_type"`
	Balance        decimal.Decimal `json:"balance"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (Member) TableName() string { return "members" }

// MemberCreateRequest is the input for creating a member.
type MemberCreateRequest struct {
	Name           string
	Role           Role
	MembershipType MembershipType
}

func (p MemberCreateRequest) Validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	switch p.Role {
	case RoleMember, RoleModerator, RoleAdmin:
	default:
		return ErrInvalidRole
	}
	switch p.MembershipType {
	case MembershipStandard, MembershipStudent, MembershipHonorary:
	default:
		return ErrInvalidMembershipType
	}
	return nil
}

// MemberFilter controls List queries.
type MemberFilter struct {
	Active         *bool
	MembershipType *MembershipType
	Limit          int
	Offset         int
}
