package models

import "time"

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleCommuter = "commuter"
)

// User is an account; Role is one of admin (transport regulator), operator
// or commuter.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	UserName  string    `json:"userName" bson:"userName"`
	Email     string    `json:"email" bson:"email"`
	Password  string    `json:"-" bson:"password"` // bcrypt hash
	Role      string    `json:"role" bson:"role"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleCommuter:
		return true
	}
	return false
}
