// README: Opaque identifiers shared by drivers, events and messages.
package types

import "github.com/google/uuid"

type ID string

func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// IDPtr returns nil for the empty id so optional references stay NULL in storage.
func IDPtr(id ID) *ID {
	if id == "" {
		return nil
	}
	return &id
}
