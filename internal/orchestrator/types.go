package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the permission level an agent instance runs with.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ErrInvalidRole is returned for roles other than user and admin.
var ErrInvalidRole = errors.New("unexpected permission role")

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Status is the closed set of instance states the harness reasons about.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusUnknown Status = "unknown"
)

// ParseStatus maps a raw runtime status into Status. Anything outside the
// closed set (paused, restarting, dead, ...) is unknown.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusCreated:
		return StatusCreated
	case StatusRunning:
		return StatusRunning
	case StatusExited:
		return StatusExited
	default:
		return StatusUnknown
	}
}

// Instance is one agent container owned by a session.
type Instance struct {
	ID     string
	Name   string
	Image  string
	Role   Role
	Port   int
	Status Status
}
