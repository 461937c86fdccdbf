package models

// RoleSupport marks a user as an assignable support agent.
const RoleSupport = "Support"

// User is a read-only projection of the shared users table. This service never
// writes users; identity management belongs to the rest of the application.
type User struct {
	ID   int    `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Role string `db:"role" json:"role"`
}
