package client

import "github.com/hollowlog/archipelago-client/pkg/protocol"

// ItemReceivedCallback is invoked exactly once per newly delivered item.
type ItemReceivedCallback func(itemID int64, locationID int64, playerSlot int)

// MessageCallback is invoked with each reassembled server text message.
type MessageCallback func(text string)

// Session is one client-side protocol session with a multiworld server.
// All methods apart from the callbacks registered on it are expected to
// be called from a single goroutine, the same one that calls Pump.
type Session interface {
	Connect() error
	Disconnect()
	// Pump drains received messages, applies their effects and fires
	// callbacks on the calling goroutine. It also drives the room
	// announcement timeout and the session heartbeat. Hosts call this
	// from their main loop.
	Pump()

	State() State
	LastError() error
	RefusalReasons() []string
	SlotNumber() int
	TeamNumber() int
	SlotName() string
	HasCheckedLocation(locationID int64) bool
	CheckedLocations() []int64
	ReceivedItemCount() int

	SendLocationCheck(locationID int64) error
	SendLocationChecks(locationIDs []int64) error
	SendLocationScouts(locationIDs []int64) error
	StatusUpdate(status protocol.ClientStatus) error
	Say(text string) error
	Bounce(data map[string]interface{}) error
	Sync() error

	SetItemReceivedCallback(callback ItemReceivedCallback)
	SetMessageCallback(callback MessageCallback)
}

// Transport is the connection the session drives. Satisfied by
// transport.Transport and by fakes in tests.
type Transport interface {
	Connect(host string, port int) error
	Send(text string) error
	Messages() <-chan string
	Err() error
	Disconnect()
}
