package models

// Role is the capability returned by the authorization collaborator for an
// acting identity. The workflow trusts this value and never re-derives it.
type Role string

const (
	RoleStaff      Role = "staff"
	RoleApproverL1 Role = "approver_level_1"
	RoleApproverL2 Role = "approver_level_2"
	RoleFinance    Role = "finance"
)

var validRoles = map[Role]bool{
	RoleStaff:      true,
	RoleApproverL1: true,
	RoleApproverL2: true,
	RoleFinance:    true,
}

// IsValid reports whether the role is recognized.
func (r Role) IsValid() bool {
	return validRoles[r]
}

// ApproverLevel returns the level this role may decide at, or 0 if the role
// is not an approver role.
func (r Role) ApproverLevel() int {
	switch r {
	case RoleApproverL1:
		return LevelOne
	case RoleApproverL2:
		return LevelTwo
	default:
		return 0
	}
}

// Actor is the acting identity resolved by the transport layer.
type Actor struct {
	UserID string
	Role   Role
}
