package enums

import "fmt"

// ProfileRole is the self-declared marketplace role stored on a profile.
type ProfileRole string

const (
	ProfileRoleIndividual   ProfileRole = "individual"
	ProfileRoleProfessional ProfileRole = "professional"
)

var validProfileRoles = []ProfileRole{
	ProfileRoleIndividual,
	ProfileRoleProfessional,
}

// String implements fmt.Stringer.
func (r ProfileRole) String() string {
	return string(r)
}

// IsValid reports whether the value matches the canonical profile role enum.
func (r ProfileRole) IsValid() bool {
	for _, candidate := range validProfileRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseProfileRole converts raw input into ProfileRole.
func ParseProfileRole(value string) (ProfileRole, error) {
	for _, candidate := range validProfileRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid profile role %q", value)
}
