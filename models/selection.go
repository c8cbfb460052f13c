package models

import (
	"fmt"
	"time"
)

// Role identifies which of the two try-on inputs an image is used for
type Role string

const (
	RoleSubject Role = "subject"
	RoleGarment Role = "garment"
)

// ParseRole accepts the role names used by the API and CLI.
// "user" and "clothes" are accepted as aliases for older clients.
func ParseRole(s string) (Role, error) {
	switch s {
	case "subject", "user", "person":
		return RoleSubject, nil
	case "garment", "clothes", "cloth":
		return RoleGarment, nil
	}
	return "", fmt.Errorf("unknown image role %q", s)
}

// Selection is an image picked for one role. Reference is an opaque local
// reference (file path, file:// URI, http(s) URL or object store URI).
type Selection struct {
	Role      Role      `bson:"role" json:"role"`
	Reference string    `bson:"reference" json:"reference"`
	PickedAt  time.Time `bson:"picked_at" json:"picked_at"`
}
