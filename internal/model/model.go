package model

// Role is the authorization role of a user within its company.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleValidator Role = "VALIDATOR"
	RoleEditor    Role = "EDITOR"
	RoleViewer    Role = "VIEWER"
)

// Principal is the authenticated caller as loaded for the current request.
type Principal struct {
	UserID        string  `json:"user_id"`
	Name          string  `json:"name"`
	Role          Role    `json:"role"`
	CompanyID     string  `json:"company_id"`
	DepartmentIDs []int64 `json:"department_ids"`
}

// HasRole reports whether the principal holds any of the given roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
