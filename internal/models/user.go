package models

// Role is the platform-level role of a user.
type Role string

const (
	RoleSponsor Role = "sponsor"
	RolePartner Role = "partner"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSponsor, RolePartner, RoleAdmin:
		return true
	}
	return false
}

// ProfileKind says which profile collection a user's ProfileID points into.
type ProfileKind string

const (
	ProfileCompany ProfileKind = "company"
	ProfilePartner ProfileKind = "partner"
)

type User struct {
	Meta
	Name               string      `json:"name"`
	Email              string      `json:"email"`
	Phone              string      `json:"phone,omitempty"`
	Role               Role        `json:"role"`
	ProfileID          string      `json:"profileId,omitempty"`
	ProfileKind        ProfileKind `json:"profileKind,omitempty"`
	OnboardingComplete bool        `json:"onboardingComplete"`
	AvatarURL          string      `json:"avatarUrl,omitempty"`
}
