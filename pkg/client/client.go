package client

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hollowlog/archipelago-client/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// State is the single source of truth for which operations are
// currently legal on a session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateTransportConnected
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateTransportConnected:
		return "transport-connected"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	}
	return "unknown"
}

type Params struct {
	ServerHost string
	ServerPort int

	GameName string
	SlotName string
	Password string
	// ItemsHandling is the items_handling bitmask sent on authentication,
	// 0b111 requests full remote item handling.
	ItemsHandling int
	Tags          []string
	Version       protocol.Version

	MaxReconnectAttempts int
	// RoomInfoTimeout bounds the wait for the server's room announcement
	// after the transport connects, defaults to 10 seconds.
	RoomInfoTimeout time.Duration
	// HeartbeatInterval is the idle Bounce cadence while authenticated,
	// defaults to 30 seconds.
	HeartbeatInterval time.Duration

	// OverrideUUID pins the client UUID, primarily for automated tests.
	// A reference to allow nil checks so an empty string stays a valid input.
	OverrideUUID *string
}

func (p *Params) applyDefaults() {
	if p.ItemsHandling == 0 {
		p.ItemsHandling = 0b111
	}
	if len(p.Tags) == 0 {
		p.Tags = []string{"AP"}
	}
	if p.Version == (protocol.Version{}) {
		p.Version = protocol.NewVersion(0, 5, 0)
	}
	if p.RoomInfoTimeout == 0 {
		p.RoomInfoTimeout = 10 * time.Second
	}
	if p.HeartbeatInterval == 0 {
		p.HeartbeatInterval = 30 * time.Second
	}
}

// sessionConfig is the immutable per-connection-attempt snapshot taken
// when Connect is called.
type sessionConfig struct {
	host          string
	port          int
	game          string
	slot          string
	password      string
	clientUUID    string
	version       protocol.Version
	itemsHandling int
	tags          []string
}

type sessionImpl struct {
	params    *Params
	transport Transport
	logger    *logrus.Logger

	state   State
	config  *sessionConfig
	lastErr error

	slotNumber int
	teamNumber int
	slotName   string
	refusals   []string

	// checkedLocations is a write-ahead record of checks sent at least
	// once, not a confirmation from the server.
	checkedLocations map[int64]bool
	// receivedItemCursor is the count of items already surfaced to the
	// host, it never moves backward.
	receivedItemCursor int

	roomInfoDeadline time.Time
	lastHeartbeat    time.Time
	transportDown    bool

	itemReceivedCallback ItemReceivedCallback
	messageCallback      MessageCallback
}

func NewDefaultSession(params *Params, transport Transport, logger *logrus.Logger) Session {
	params.applyDefaults()
	return &sessionImpl{
		params:           params,
		transport:        transport,
		logger:           logger,
		state:            StateDisconnected,
		slotNumber:       -1,
		checkedLocations: map[int64]bool{},
		transportDown:    true,
	}
}

func (s *sessionImpl) Connect() error {
	if s.state != StateDisconnected {
		s.logger.Debug("session: connect rejected, session already active in state ", s.state)
		return errState("connect", s.state)
	}

	clientUUID := uuid.New().String()
	if s.params.OverrideUUID != nil {
		clientUUID = *s.params.OverrideUUID
	}

	s.config = &sessionConfig{
		host:          s.params.ServerHost,
		port:          s.params.ServerPort,
		game:          s.params.GameName,
		slot:          s.params.SlotName,
		password:      s.params.Password,
		clientUUID:    clientUUID,
		version:       s.params.Version,
		itemsHandling: s.params.ItemsHandling,
		tags:          s.params.Tags,
	}
	s.refusals = nil
	s.lastErr = nil
	s.state = StateConnecting

	err := backoff.Retry(s.retryConnect, backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(),
		uint64(s.params.MaxReconnectAttempts),
	))
	if err != nil {
		s.state = StateError
		s.lastErr = err
		return err
	}

	s.state = StateTransportConnected
	s.transportDown = false
	// The server is expected to proactively announce the room, the
	// attempt fails if it does not within this window.
	s.roomInfoDeadline = time.Now().Add(s.params.RoomInfoTimeout)
	return nil
}

func (s *sessionImpl) retryConnect() error {
	return s.transport.Connect(s.config.host, s.config.port)
}

func (s *sessionImpl) Disconnect() {
	s.transport.Disconnect()
	s.reset(StateDisconnected)
}

func (s *sessionImpl) reset(state State) {
	s.state = state
	s.config = nil
	s.slotNumber = -1
	s.teamNumber = 0
	s.slotName = ""
	s.checkedLocations = map[int64]bool{}
	s.receivedItemCursor = 0
	s.roomInfoDeadline = time.Time{}
	s.transportDown = true
}

func (s *sessionImpl) Pump() {
	s.checkRoomInfoDeadline()
	s.drainMessages()
	s.maybeHeartbeat()
}

func (s *sessionImpl) checkRoomInfoDeadline() {
	if s.state != StateTransportConnected || s.roomInfoDeadline.IsZero() {
		return
	}
	if time.Now().Before(s.roomInfoDeadline) {
		return
	}

	s.logger.Error("session: timed out waiting for the server room announcement")
	s.lastErr = errors.New("timed out waiting for the server room announcement")
	s.transport.Disconnect()
	s.transportDown = true
	s.state = StateError
}

func (s *sessionImpl) drainMessages() {
	if s.transportDown {
		return
	}

	for {
		select {
		case message, ok := <-s.transport.Messages():
			if !ok {
				s.onTransportClosed()
				return
			}
			s.dispatch(message)
		default:
			return
		}
	}
}

func (s *sessionImpl) onTransportClosed() {
	s.transportDown = true
	cause := s.transport.Err()

	if s.state == StateAuthenticated {
		// A failure on an established session takes the same path
		// as a graceful close, with the cause kept for diagnostics.
		s.logger.Debug("session: transport closed: ", cause)
		s.lastErr = cause
		s.transport.Disconnect()
		s.reset(StateDisconnected)
		return
	}

	if s.state == StateConnecting || s.state == StateTransportConnected {
		s.logger.Error("session: connection attempt failed: ", cause)
		if cause == nil {
			cause = errors.New("connection closed before authentication completed")
		}
		s.lastErr = cause
		s.transport.Disconnect()
		s.state = StateError
	}
}

func (s *sessionImpl) maybeHeartbeat() {
	if s.state != StateAuthenticated {
		return
	}
	if time.Since(s.lastHeartbeat) < s.params.HeartbeatInterval {
		return
	}

	err := s.sendPacket(protocol.NewBouncePacket(nil))
	if err != nil {
		s.logger.Debug("session: heartbeat send failed: ", err)
	}
	s.lastHeartbeat = time.Now()
}

func (s *sessionImpl) dispatch(message string) {
	packets, err := protocol.ParsePackets(message)
	if err != nil {
		// One bad payload must not tear down an otherwise-healthy session.
		s.logger.Error("session: dropping malformed payload: ", err)
		return
	}

	for _, packet := range packets {
		switch p := packet.(type) {
		case *protocol.RoomInfoPacket:
			s.handleRoomInfo(p)
		case *protocol.ConnectedPacket:
			s.handleConnected(p)
		case *protocol.ConnectionRefusedPacket:
			s.handleConnectionRefused(p)
		case *protocol.ReceivedItemsPacket:
			s.handleReceivedItems(p)
		case *protocol.LocationInfoPacket:
			s.handleLocationInfo(p)
		case *protocol.RoomUpdatePacket:
			s.logger.Debug("session: room update received")
		case *protocol.PrintJSONPacket:
			s.handlePrintJSON(p)
		case *protocol.BouncedPacket:
			s.logger.Debug("session: bounce echo received")
		default:
			s.logger.Debug("session: ignoring packet with command ", packet.Cmd())
		}
	}
}

func (s *sessionImpl) handleRoomInfo(packet *protocol.RoomInfoPacket) {
	if s.state != StateTransportConnected {
		s.logger.Debug("session: room announcement ignored in state ", s.state)
		return
	}

	s.logger.Debug("session: room announced, seed ", packet.SeedName, ", authenticating as ", s.config.slot)
	s.roomInfoDeadline = time.Time{}

	err := s.sendPacket(&protocol.ConnectPacket{
		Command:       protocol.CmdConnect,
		Game:          s.config.game,
		Name:          s.config.slot,
		Password:      s.config.password,
		UUID:          s.config.clientUUID,
		Version:       s.config.version,
		ItemsHandling: s.config.itemsHandling,
		Tags:          s.config.tags,
	})
	if err != nil {
		s.logger.Error("session: failed to send authentication packet: ", err)
		s.lastErr = err
		s.state = StateError
	}
}

func (s *sessionImpl) handleConnected(packet *protocol.ConnectedPacket) {
	if s.state != StateTransportConnected {
		s.logger.Debug("session: authentication success ignored in state ", s.state)
		return
	}

	s.state = StateAuthenticated
	s.slotNumber = packet.Slot
	s.teamNumber = packet.Team
	s.slotName = s.config.slot
	s.receivedItemCursor = 0
	s.lastHeartbeat = time.Now()

	s.logger.Info(fmt.Sprintf(
		"session: authenticated as %s, slot %d on team %d",
		s.slotName, s.slotNumber, s.teamNumber,
	))
}

func (s *sessionImpl) handleConnectionRefused(packet *protocol.ConnectionRefusedPacket) {
	// Reason codes are surfaced to the host unchanged, interpreting
	// them is the host's choice.
	s.refusals = append([]string{}, packet.Errors...)
	s.lastErr = fmt.Errorf("authentication refused: %v", packet.Errors)
	s.logger.Error("session: authentication refused: ", packet.Errors)
	s.state = StateError
}

func (s *sessionImpl) handleReceivedItems(packet *protocol.ReceivedItemsPacket) {
	if s.state != StateAuthenticated {
		// Applying a delivery before the cursor is established would
		// surface the same items again on the post-auth replay.
		s.logger.Debug("session: item delivery ignored in state ", s.state)
		return
	}

	for position, item := range packet.Items {
		absoluteIndex := packet.Index + position
		if absoluteIndex < s.receivedItemCursor {
			// Already surfaced, a repeated or overlapping delivery
			// must not notify twice.
			continue
		}
		if s.itemReceivedCallback != nil {
			s.itemReceivedCallback(item.Item, item.Location, item.Player)
		}
	}

	endIndex := packet.Index + len(packet.Items)
	if endIndex > s.receivedItemCursor {
		s.receivedItemCursor = endIndex
	}
}

func (s *sessionImpl) handleLocationInfo(packet *protocol.LocationInfoPacket) {
	for _, location := range packet.Locations {
		s.logger.Debug(
			"session: location ", location.Location,
			" holds item ", location.Item,
			" for player ", location.Player,
		)
	}
}

func (s *sessionImpl) handlePrintJSON(packet *protocol.PrintJSONPacket) {
	text := packet.Text()
	if text == "" {
		return
	}
	if s.messageCallback != nil {
		s.messageCallback(text)
	}
}

func (s *sessionImpl) SendLocationCheck(locationID int64) error {
	return s.SendLocationChecks([]int64{locationID})
}

func (s *sessionImpl) SendLocationChecks(locationIDs []int64) error {
	if s.state != StateAuthenticated {
		s.logger.Debug("session: location checks dropped in state ", s.state)
		return errState("location checks", s.state)
	}

	// Recorded before sending, the set is a write-ahead record of
	// intent rather than a server confirmation.
	for _, locationID := range locationIDs {
		s.checkedLocations[locationID] = true
	}

	return s.sendPacket(protocol.NewLocationChecksPacket(locationIDs))
}

func (s *sessionImpl) SendLocationScouts(locationIDs []int64) error {
	if s.state != StateAuthenticated {
		s.logger.Debug("session: location scouts dropped in state ", s.state)
		return errState("location scouts", s.state)
	}
	return s.sendPacket(protocol.NewLocationScoutsPacket(locationIDs))
}

func (s *sessionImpl) StatusUpdate(status protocol.ClientStatus) error {
	if s.state != StateAuthenticated {
		s.logger.Debug("session: status update dropped in state ", s.state)
		return errState("status update", s.state)
	}
	return s.sendPacket(protocol.NewStatusUpdatePacket(status))
}

func (s *sessionImpl) Say(text string) error {
	if s.state != StateAuthenticated {
		s.logger.Debug("session: chat message dropped in state ", s.state)
		return errState("say", s.state)
	}
	return s.sendPacket(protocol.NewSayPacket(text))
}

func (s *sessionImpl) Bounce(data map[string]interface{}) error {
	if s.state != StateAuthenticated {
		s.logger.Debug("session: bounce dropped in state ", s.state)
		return errState("bounce", s.state)
	}
	return s.sendPacket(protocol.NewBouncePacket(data))
}

func (s *sessionImpl) Sync() error {
	if s.state != StateAuthenticated {
		s.logger.Debug("session: sync dropped in state ", s.state)
		return errState("sync", s.state)
	}
	return s.sendPacket(protocol.NewSyncPacket())
}

func (s *sessionImpl) sendPacket(packet protocol.Packet) error {
	message, err := protocol.MarshalPackets(packet)
	if err != nil {
		return err
	}
	return s.transport.Send(message)
}

func (s *sessionImpl) State() State {
	return s.state
}

func (s *sessionImpl) LastError() error {
	return s.lastErr
}

func (s *sessionImpl) RefusalReasons() []string {
	return s.refusals
}

func (s *sessionImpl) SlotNumber() int {
	return s.slotNumber
}

func (s *sessionImpl) TeamNumber() int {
	return s.teamNumber
}

func (s *sessionImpl) SlotName() string {
	return s.slotName
}

func (s *sessionImpl) HasCheckedLocation(locationID int64) bool {
	return s.checkedLocations[locationID]
}

func (s *sessionImpl) CheckedLocations() []int64 {
	locations := make([]int64, 0, len(s.checkedLocations))
	for locationID := range s.checkedLocations {
		locations = append(locations, locationID)
	}
	sort.Slice(locations, func(i, j int) bool {
		return locations[i] < locations[j]
	})
	return locations
}

func (s *sessionImpl) ReceivedItemCount() int {
	return s.receivedItemCursor
}

func (s *sessionImpl) SetItemReceivedCallback(callback ItemReceivedCallback) {
	s.itemReceivedCallback = callback
}

func (s *sessionImpl) SetMessageCallback(callback MessageCallback) {
	s.messageCallback = callback
}
