// Package domain contains entity types without logic, just meta-data.
package domain

// RoomID is the opaque room identifier supplied by the publisher.
type RoomID string

// Role is the part a session plays in its room. A session has exactly
// one role for the lifetime of a binding.
type Role uint8

const (
	RolePublisher Role = iota
	RoleSubscriber
)

func (r Role) String() string {
	if r == RolePublisher {
		return "publisher"
	}
	return "subscriber"
}
