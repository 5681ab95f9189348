package rwportal

import (
	"bytes"
	"encoding/json"
	"strings"
)

// UserRole is the role the API assigns to an account.
type UserRole string

const (
	RoleWarga     UserRole = "warga"
	RoleAdmin     UserRole = "admin"
	RoleBendahara UserRole = "bendahara"
	RoleRT        UserRole = "rt"
	RoleRW        UserRole = "rw"
)

// IsValid checks if the role is one of the predefined valid roles
func (r UserRole) IsValid() bool {
	switch r {
	case RoleWarga, RoleAdmin, RoleBendahara, RoleRT, RoleRW:
		return true
	default:
		return false
	}
}

// Label is the display name for the role.
func (r UserRole) Label() string {
	switch r {
	case RoleWarga:
		return "Warga"
	case RoleAdmin:
		return "Admin"
	case RoleBendahara:
		return "Bendahara"
	case RoleRT:
		return "Ketua RT"
	case RoleRW:
		return "Ketua RW"
	default:
		return string(r)
	}
}

// Is reports whether r is any of roles.
func (r UserRole) Is(roles ...UserRole) bool {
	for _, role := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanManageUsers checks if this role can administer accounts
func (r UserRole) CanManageUsers() bool {
	return r == RoleAdmin
}

// CanRecordTransactions checks if this role can add ledger entries
func (r UserRole) CanRecordTransactions() bool {
	return r.Is(RoleAdmin, RoleBendahara)
}

// CanModerateComplaints checks if this role can move a complaint through its workflow
func (r UserRole) CanModerateComplaints() bool {
	return r.Is(RoleAdmin, RoleRT, RoleRW)
}

// UnmarshalJSON accepts either "admin" or {"id": 1, "name": "admin"}.
func (r *UserRole) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}

	if data[0] == '{' {
		var obj struct {
			Name string `json:"name"`
			Role string `json:"role"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		name := obj.Name
		if name == "" {
			name = obj.Role
		}
		*r = normalizeRole(name)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = normalizeRole(s)
	return nil
}

// GetAllRoles returns all predefined roles in the order forms list them
func GetAllRoles() []UserRole {
	return []UserRole{
		RoleWarga,
		RoleAdmin,
		RoleBendahara,
		RoleRT,
		RoleRW,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := normalizeRole(roleStr)
	return role, role.IsValid()
}

func normalizeRole(s string) UserRole {
	return UserRole(strings.ToLower(strings.TrimSpace(s)))
}
