package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hollowlog/archipelago-client/pkg/protocol"
	"github.com/sirupsen/logrus"
)

type fakeTransport struct {
	connectErr  error
	connected   bool
	sent        []string
	messages    chan string
	closeErr    error
	disconnects int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan string, 16),
	}
}

func (f *fakeTransport) Connect(host string, port int) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Send(text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) Messages() <-chan string {
	return f.messages
}

func (f *fakeTransport) Err() error {
	return f.closeErr
}

func (f *fakeTransport) Disconnect() {
	f.connected = false
	f.disconnects += 1
}

func Test_room_announcement_triggers_authentication(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	fake.messages <- `[{"cmd":"RoomInfo","seed_name":"seed-1"}]`
	session.Pump()

	if len(fake.sent) != 1 {
		t.Error("expected exactly one packet to be sent, sent: ", fake.sent)
		t.FailNow()
	}
	for _, fragment := range []string{
		`"cmd":"Connect"`,
		`"name":"Nova"`,
		`"game":"Selaco"`,
		`"uuid":"11111111-2222-3333-4444-555555555555"`,
		`"items_handling":7`,
	} {
		if !strings.Contains(fake.sent[0], fragment) {
			t.Error("expected authentication packet to contain ", fragment, ", sent: ", fake.sent[0])
		}
	}

	fake.messages <- `[{"cmd":"Connected","team":0,"slot":3,"missing_locations":[1001,1002],"checked_locations":[]}]`
	session.Pump()

	if session.State() != StateAuthenticated {
		t.Error("expected the session to be authenticated, state: ", session.State())
	}
	if session.SlotNumber() != 3 {
		t.Error("expected slot number 3, received: ", session.SlotNumber())
	}
	if session.TeamNumber() != 0 {
		t.Error("expected team number 0, received: ", session.TeamNumber())
	}
	if session.SlotName() != "Nova" {
		t.Error("expected slot name Nova, received: ", session.SlotName())
	}
}

func Test_connect_is_rejected_while_the_session_is_active(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	err = session.Connect()
	operationErr := &OperationError{}
	if !errors.As(err, &operationErr) {
		t.Error("expected an operation error, received: ", err)
	}
	if session.State() != StateTransportConnected {
		t.Error("expected the active session to be untouched, state: ", session.State())
	}
}

func Test_connect_failure_surfaces_an_error_state(t *testing.T) {
	fake := newFakeTransport()
	fake.connectErr = errors.New("connection refused")
	session := createTestSession(fake, nil)

	err := session.Connect()
	if err == nil {
		t.Error("expected connect to fail")
		t.FailNow()
	}
	if session.State() != StateError {
		t.Error("expected the session to be in the error state, state: ", session.State())
	}
	if session.LastError() == nil {
		t.Error("expected the failure cause to be recorded")
	}
}

func Test_location_checks_are_recorded_idempotently(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)
	authenticate(t, session, fake)

	err := session.SendLocationCheck(42)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	err = session.SendLocationCheck(42)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	if !session.HasCheckedLocation(42) {
		t.Error("expected location 42 to be recorded as checked")
	}
	checked := session.CheckedLocations()
	if len(checked) != 1 || checked[0] != 42 {
		t.Error("expected a single recorded check, received: ", checked)
	}
	// Re-sending intent is allowed, the record is what dedupes.
	if countPackets(fake.sent, protocol.CmdLocationChecks) != 2 {
		t.Error("expected both check packets to go out, sent: ", fake.sent)
	}
}

func Test_overlapping_item_deliveries_fire_callbacks_exactly_once(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	receivedItems := []int64{}
	session.SetItemReceivedCallback(func(itemID int64, locationID int64, playerSlot int) {
		receivedItems = append(receivedItems, itemID)
	})
	authenticate(t, session, fake)

	fake.messages <- `[{"cmd":"ReceivedItems","index":0,"items":[` +
		`{"item":101,"location":1001,"player":3},` +
		`{"item":102,"location":1002,"player":3},` +
		`{"item":103,"location":1003,"player":3}]}]`
	session.Pump()

	// A replay of a suffix must not notify again.
	fake.messages <- `[{"cmd":"ReceivedItems","index":1,"items":[` +
		`{"item":102,"location":1002,"player":3},` +
		`{"item":103,"location":1003,"player":3}]}]`
	session.Pump()

	if len(receivedItems) != 3 {
		t.Error("expected exactly three item callbacks, received: ", receivedItems)
	}
	if session.ReceivedItemCount() != 3 {
		t.Error("expected the item cursor at 3, received: ", session.ReceivedItemCount())
	}

	// An overlapping delivery carrying one genuinely new item fires once.
	fake.messages <- `[{"cmd":"ReceivedItems","index":2,"items":[` +
		`{"item":103,"location":1003,"player":3},` +
		`{"item":104,"location":1004,"player":3}]}]`
	session.Pump()

	if len(receivedItems) != 4 {
		t.Error("expected exactly four item callbacks, received: ", receivedItems)
	}
	if receivedItems[3] != 104 {
		t.Error("expected item 104 to be the new delivery, received: ", receivedItems[3])
	}
	if session.ReceivedItemCount() != 4 {
		t.Error("expected the item cursor at 4, received: ", session.ReceivedItemCount())
	}
}

func Test_item_deliveries_before_authentication_are_ignored(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	receivedItems := []int64{}
	session.SetItemReceivedCallback(func(itemID int64, locationID int64, playerSlot int) {
		receivedItems = append(receivedItems, itemID)
	})

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	fake.messages <- `[{"cmd":"ReceivedItems","index":0,"items":[{"item":101,"location":1001,"player":3}]}]`
	session.Pump()

	if len(receivedItems) != 0 {
		t.Error("expected no callbacks before authentication, received: ", receivedItems)
	}
	if session.ReceivedItemCount() != 0 {
		t.Error("expected the item cursor to stay at 0, received: ", session.ReceivedItemCount())
	}

	fake.messages <- `[{"cmd":"RoomInfo","seed_name":"seed-1"}]`
	fake.messages <- `[{"cmd":"Connected","team":0,"slot":3,"missing_locations":[],"checked_locations":[]}]`
	fake.messages <- `[{"cmd":"ReceivedItems","index":0,"items":[{"item":101,"location":1001,"player":3}]}]`
	session.Pump()

	// The authenticated replay is the one delivery that counts.
	if len(receivedItems) != 1 {
		t.Error("expected exactly one item callback, received: ", receivedItems)
	}
	if session.ReceivedItemCount() != 1 {
		t.Error("expected the item cursor at 1, received: ", session.ReceivedItemCount())
	}
}

func Test_authentication_refusal_surfaces_reason_codes(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	fake.messages <- `[{"cmd":"RoomInfo","seed_name":"seed-1"}]`
	fake.messages <- `[{"cmd":"ConnectionRefused","errors":["InvalidSlot"]}]`
	session.Pump()

	if session.State() != StateError {
		t.Error("expected the session to be in the error state, state: ", session.State())
	}
	refusals := session.RefusalReasons()
	if len(refusals) != 1 || refusals[0] != "InvalidSlot" {
		t.Error("expected the refusal reason to be surfaced, received: ", refusals)
	}
	if session.LastError() == nil {
		t.Error("expected the refusal to be recorded as the last error")
	}
}

func Test_malformed_payloads_do_not_change_session_state(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	fake.messages <- `{"cmd":"RoomInfo"}`
	fake.messages <- `not json at all`
	session.Pump()

	if session.State() != StateTransportConnected {
		t.Error("expected malformed payloads to be dropped, state: ", session.State())
	}
}

func Test_missing_room_announcement_times_out(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, func(params *Params) {
		params.RoomInfoTimeout = 10 * time.Millisecond
	})

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	time.Sleep(30 * time.Millisecond)
	session.Pump()

	if session.State() != StateError {
		t.Error("expected the attempt to time out, state: ", session.State())
	}
	if session.LastError() == nil {
		t.Error("expected the timeout to be recorded as the last error")
	}
	if fake.disconnects == 0 {
		t.Error("expected the transport to be torn down on timeout")
	}
}

func Test_disconnect_clears_session_bookkeeping(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)
	authenticate(t, session, fake)

	err := session.SendLocationCheck(42)
	if err != nil {
		t.Error(err)
		t.FailNow()
	}
	fake.messages <- `[{"cmd":"ReceivedItems","index":0,"items":[{"item":101,"location":1001,"player":3}]}]`
	session.Pump()

	session.Disconnect()

	if session.State() != StateDisconnected {
		t.Error("expected a disconnected session, state: ", session.State())
	}
	if session.SlotNumber() != -1 {
		t.Error("expected the slot number to be cleared, received: ", session.SlotNumber())
	}
	if session.HasCheckedLocation(42) {
		t.Error("expected recorded checks to be cleared")
	}
	if session.ReceivedItemCount() != 0 {
		t.Error("expected the item cursor to be cleared, received: ", session.ReceivedItemCount())
	}

	// A fresh attempt is allowed after a graceful disconnect.
	err = session.Connect()
	if err != nil {
		t.Error("expected a reconnect to be accepted, received: ", err)
	}
}

func Test_idle_authenticated_sessions_send_heartbeat_bounces(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, func(params *Params) {
		params.HeartbeatInterval = 10 * time.Millisecond
	})
	authenticate(t, session, fake)

	time.Sleep(30 * time.Millisecond)
	session.Pump()

	if countPackets(fake.sent, protocol.CmdBounce) == 0 {
		t.Error("expected an idle heartbeat to be sent, sent: ", fake.sent)
	}
}

func Test_transport_failure_during_a_session_disconnects_with_cause(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)
	authenticate(t, session, fake)

	cause := errors.New("connection closed by server")
	fake.closeErr = cause
	close(fake.messages)
	session.Pump()

	if session.State() != StateDisconnected {
		t.Error("expected a disconnected session, state: ", session.State())
	}
	if session.LastError() != cause {
		t.Error("expected the close cause to be recorded, received: ", session.LastError())
	}
}

func Test_transport_failure_before_authentication_is_an_error(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	close(fake.messages)
	session.Pump()

	if session.State() != StateError {
		t.Error("expected the attempt to fail, state: ", session.State())
	}
	if session.LastError() == nil {
		t.Error("expected a failure cause to be recorded")
	}
}

func Test_operations_require_an_authenticated_session(t *testing.T) {
	fake := newFakeTransport()
	session := createTestSession(fake, nil)

	operations := map[string]func() error{
		"location checks": func() error { return session.SendLocationCheck(42) },
		"location scouts": func() error { return session.SendLocationScouts([]int64{42}) },
		"status update":   func() error { return session.StatusUpdate(protocol.StatusReady) },
		"say":             func() error { return session.Say("hello") },
		"bounce":          func() error { return session.Bounce(nil) },
		"sync":            func() error { return session.Sync() },
	}

	for name, operation := range operations {
		err := operation()
		operationErr := &OperationError{}
		if !errors.As(err, &operationErr) {
			t.Error("expected an operation error for ", name, ", received: ", err)
		}
	}

	if len(fake.sent) != 0 {
		t.Error("expected nothing to be sent, sent: ", fake.sent)
	}
}

func createTestSession(fake *fakeTransport, modify func(params *Params)) Session {
	clientUUID := "11111111-2222-3333-4444-555555555555"
	params := &Params{
		ServerHost:   "localhost",
		ServerPort:   38281,
		GameName:     "Selaco",
		SlotName:     "Nova",
		OverrideUUID: &clientUUID,
	}
	if modify != nil {
		modify(params)
	}
	return NewDefaultSession(params, fake, createLogger())
}

func createLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func authenticate(t *testing.T, session Session, fake *fakeTransport) {
	err := session.Connect()
	if err != nil {
		t.Error(err)
		t.FailNow()
	}

	fake.messages <- `[{"cmd":"RoomInfo","seed_name":"seed-1"}]`
	fake.messages <- `[{"cmd":"Connected","team":0,"slot":3,"missing_locations":[],"checked_locations":[]}]`
	session.Pump()

	if session.State() != StateAuthenticated {
		t.Error("expected the session to authenticate, state: ", session.State())
		t.FailNow()
	}
}

func countPackets(sent []string, cmd string) int {
	count := 0
	search := fmt.Sprintf(`"cmd":%q`, cmd)
	for _, message := range sent {
		if strings.Contains(message, search) {
			count += 1
		}
	}
	return count
}
