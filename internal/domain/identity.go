package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// Role identifies which of the three independent account kinds a principal belongs to.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// RolesByPriority lists roles from highest to lowest active-identity priority.
var RolesByPriority = [...]Role{RoleAdmin, RoleInstructor, RoleStudent}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	}
	return false
}

// Priority returns a larger number for roles that win active-identity resolution.
func (r Role) Priority() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleInstructor:
		return 2
	case RoleStudent:
		return 1
	}
	return 0
}

// ParseRole converts a string into a Role.
func ParseRole(value string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if !r.Valid() {
		return "", fmt.Errorf("domain: unknown role %q", value)
	}
	return r, nil
}

// DefaultProfilePhoto is the placeholder avatar assigned on sign-up.
const DefaultProfilePhoto = "avatars/default.png"

// Identity is one authenticated principal for exactly one role.
type Identity struct {
	ID                 string  `json:"id"`
	Email              string  `json:"email"`
	DisplayName        string  `json:"display_name"`
	Phone              string  `json:"phone"`
	PhotoURL           *string `json:"photo_url,omitempty"`
	Role               Role    `json:"role"`
	LicenseNumber      string  `json:"license_number,omitempty"`
	VehicleDescription string  `json:"vehicle_description,omitempty"`
	ProfileComplete    bool    `json:"profile_complete"`
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i.ID == "" && i.Role == ""
}

// Normalized returns a copy with ProfileComplete recomputed from the other fields.
func (i Identity) Normalized() Identity {
	out := i
	if i.PhotoURL != nil {
		photo := *i.PhotoURL
		out.PhotoURL = &photo
	}
	out.ProfileComplete = IsProfileComplete(out)
	return out
}

// IsProfileComplete derives the profile completeness flag.
//
// A complete profile has a first and last name, a phone number with at least
// ten digits and a non-default photo. Instructors also need a license number
// and a vehicle description.
func IsProfileComplete(i Identity) bool {
	if len(strings.Fields(i.DisplayName)) < 2 {
		return false
	}
	if countDigits(i.Phone) < 10 {
		return false
	}
	if i.PhotoURL == nil {
		return false
	}
	photo := strings.TrimSpace(*i.PhotoURL)
	if photo == "" || photo == DefaultProfilePhoto {
		return false
	}
	if i.Role == RoleInstructor {
		if strings.TrimSpace(i.LicenseNumber) == "" || strings.TrimSpace(i.VehicleDescription) == "" {
			return false
		}
	}
	return true
}

func countDigits(value string) int {
	n := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// ProfileUpdate carries the editable profile fields. Nil pointers are left untouched.
type ProfileUpdate struct {
	DisplayName        *string `json:"display_name,omitempty"`
	Phone              *string `json:"phone,omitempty"`
	PhotoURL           *string `json:"photo_url,omitempty"`
	LicenseNumber      *string `json:"license_number,omitempty"`
	VehicleDescription *string `json:"vehicle_description,omitempty"`
}

// Apply returns a copy of identity with the update applied and completeness recomputed.
func (u ProfileUpdate) Apply(identity Identity) Identity {
	out := identity
	if u.DisplayName != nil {
		out.DisplayName = strings.Join(strings.Fields(*u.DisplayName), " ")
	}
	if u.Phone != nil {
		out.Phone = strings.TrimSpace(*u.Phone)
	}
	if u.PhotoURL != nil {
		photo := strings.TrimSpace(*u.PhotoURL)
		out.PhotoURL = &photo
	}
	if u.LicenseNumber != nil {
		out.LicenseNumber = strings.TrimSpace(*u.LicenseNumber)
	}
	if u.VehicleDescription != nil {
		out.VehicleDescription = strings.TrimSpace(*u.VehicleDescription)
	}
	return out.Normalized()
}

// IsEmpty reports whether the update changes nothing.
func (u ProfileUpdate) IsEmpty() bool {
	return u.DisplayName == nil && u.Phone == nil && u.PhotoURL == nil && u.LicenseNumber == nil && u.VehicleDescription == nil
}
