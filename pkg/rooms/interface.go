package rooms

import "errors"

// Refusal reason codes sent in ConnectionRefused packets.
var (
	ErrInvalidSlot     = errors.New("InvalidSlot")
	ErrInvalidGame     = errors.New("InvalidGame")
	ErrInvalidPassword = errors.New("InvalidPassword")
)

// SlotConfig describes one player slot in a room.
type SlotConfig struct {
	Name string
	Game string
	// Items maps a location id to the item granted when it is checked.
	// A nil map grants item ids derived from the location id plus the
	// room's ItemIDOffset, which is convenient for development rooms.
	Items map[int64]int64
}

// RoomParams is the immutable configuration of a hosted room.
type RoomParams struct {
	SeedName     string
	Password     string
	Slots        []SlotConfig
	ItemIDOffset int64
}

// GrantedItem is one item appended to a slot's delivery log.
type GrantedItem struct {
	Item     int64
	Location int64
	Player   int
}

// RoomStore holds the authoritative per-slot state of a room: which
// locations have been checked and which items have been granted, in
// delivery order so clients can resume from an index.
type RoomStore interface {
	// Join validates credentials and returns the slot number.
	// Refusal errors carry the protocol reason code.
	Join(slotName string, game string, password string) (int, error)
	// Check records location checks for a slot, returning the starting
	// index of any newly granted items within the delivery log along
	// with the items themselves. Re-checking a location grants nothing.
	Check(slot int, locations []int64) (int, []GrantedItem, error)
	// ItemsFrom returns the delivery log for a slot starting at index.
	ItemsFrom(slot int, index int) ([]GrantedItem, error)
	// CheckedLocations returns the locations a slot has checked.
	CheckedLocations(slot int) []int64
	// MissingLocations returns configured locations not yet checked.
	MissingLocations(slot int) []int64
}
