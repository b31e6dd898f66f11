// Package tenantspace manages the isolated storage namespace behind
// each tenant: its schema, its tables and their lifecycle.
package tenantspace

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// None of these models pins a table name: physical names come from the
// scoped handle's naming strategy, so every tenant resolves to its own
// tables. Index names are derived too, for the same reason.

// Member is a user account inside one tenant space.
type Member struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	PasswordHash string       `gorm:"type:text;not null;column:password_hash" json:"-"`
	Role         string       `gorm:"type:text;not null" json:"role"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Role is a named permission bundle inside one tenant space.
type Role struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// Permission is one grantable action inside one tenant space.
type Permission struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// RolePermission links roles to permissions.
type RolePermission struct {
	RoleID       snowflake.ID `gorm:"primaryKey;column:role_id" json:"role_id"`
	PermissionID snowflake.ID `gorm:"primaryKey;column:permission_id" json:"permission_id"`
}

// Team groups members and boards.
type Team struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Board is one kanban board.
type Board struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	TeamID    *snowflake.ID `gorm:"index;column:team_id" json:"team_id,omitempty"`
	Name      string        `gorm:"type:text;not null" json:"name"`
	Color     string        `gorm:"type:text;not null" json:"color"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Task is one card on a board.
type Task struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	BoardID     snowflake.ID  `gorm:"not null;index;column:board_id" json:"board_id"`
	Title       string        `gorm:"type:text;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	Status      string        `gorm:"type:text;not null" json:"status"`
	AssigneeID  *snowflake.ID `gorm:"index;column:assignee_id" json:"assignee_id,omitempty"`
	Position    int           `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Models lists the tables allocated in every tenant space, in
// migration order.
func Models() []any {
	return []any{
		&Member{},
		&Role{},
		&Permission{},
		&RolePermission{},
		&Team{},
		&Board{},
		&Task{},
	}
}
