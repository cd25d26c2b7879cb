package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hollowlog/archipelago-client/pkg/protocol"
	"github.com/hollowlog/archipelago-client/pkg/rooms"
	"github.com/sirupsen/logrus"
)

// ServerParams configures the development room server. The server
// exists so the client stack can be exercised end to end without a
// live multiworld host, it implements the subset of the protocol the
// client speaks.
type ServerParams struct {
	SeedName string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// No need for strict CORS checking for a development server.
		return true
	},
}

type serverImpl struct {
	params *ServerParams
	store  rooms.RoomStore
	logger *logrus.Logger
}

func NewDefaultServer(params *ServerParams, store rooms.RoomStore, logger *logrus.Logger) http.Handler {
	return &serverImpl{
		params,
		store,
		logger,
	}
}

func (s *serverImpl) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websockets upgrade error: ", err)
		return
	}
	defer conn.Close()

	// The room is announced unsolicited as soon as the transport is up,
	// clients authenticate in response.
	err = s.writePackets(conn, &protocol.RoomInfoPacket{
		Command:  protocol.CmdRoomInfo,
		SeedName: s.params.SeedName,
		Time:     float64(time.Now().Unix()),
	})
	if err != nil {
		s.logger.Error("failed to announce room: ", err)
		return
	}

	session := &connSession{slot: -1}
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("read error: ", err)
			break
		}
		s.handleMessage(conn, session, message)
	}
}

type connSession struct {
	slot     int
	slotName string
}

func (s *serverImpl) handleMessage(conn *websocket.Conn, session *connSession, message []byte) {
	packets, err := protocol.ParsePackets(string(message))
	if err != nil {
		s.logger.Error("dropping malformed client payload: ", err)
		return
	}

	for _, packet := range packets {
		switch p := packet.(type) {
		case *protocol.ConnectPacket:
			s.handleConnect(conn, session, p)
		case *protocol.LocationChecksPacket:
			s.handleLocationChecks(conn, session, p)
		case *protocol.LocationScoutsPacket:
			s.handleLocationScouts(conn, session, p)
		case *protocol.SyncPacket:
			s.handleSync(conn, session)
		case *protocol.SayPacket:
			s.handleSay(conn, session, p)
		case *protocol.BouncePacket:
			s.writeError(conn, s.writePackets(conn, &protocol.BouncedPacket{
				Command: protocol.CmdBounced,
				Data:    p.Data,
			}))
		case *protocol.StatusUpdatePacket:
			s.logger.Debug("slot ", session.slot, " reports status ", p.Status)
		default:
			s.logger.Debug("ignoring client packet with command ", packet.Cmd())
		}
	}
}

func (s *serverImpl) handleConnect(conn *websocket.Conn, session *connSession, packet *protocol.ConnectPacket) {
	slot, err := s.store.Join(packet.Name, packet.Game, packet.Password)
	if err != nil {
		s.logger.Debug("refusing connection for ", packet.Name, ": ", err)
		s.writeError(conn, s.writePackets(conn, &protocol.ConnectionRefusedPacket{
			Command: protocol.CmdConnectionRefused,
			Errors:  []string{err.Error()},
		}))
		return
	}

	session.slot = slot
	session.slotName = packet.Name
	s.logger.Debug("slot ", slot, " authenticated as ", packet.Name)

	s.writeError(conn, s.writePackets(conn, &protocol.ConnectedPacket{
		Command:          protocol.CmdConnected,
		Team:             0,
		Slot:             slot,
		MissingLocations: s.store.MissingLocations(slot),
		CheckedLocations: s.store.CheckedLocations(slot),
	}))

	// Items granted before this connection are replayed immediately,
	// index gating on the client keeps delivery at-most-once.
	items, err := s.store.ItemsFrom(slot, 0)
	if err == nil && len(items) > 0 {
		s.writeError(conn, s.writeItems(conn, 0, items))
	}
}

func (s *serverImpl) handleLocationChecks(conn *websocket.Conn, session *connSession, packet *protocol.LocationChecksPacket) {
	if session.slot < 1 {
		s.logger.Debug("location checks before authentication, ignoring")
		return
	}

	start, granted, err := s.store.Check(session.slot, packet.Locations)
	if err != nil {
		s.logger.Error("failed to record location checks: ", err)
		return
	}

	if len(granted) > 0 {
		s.writeError(conn, s.writeItems(conn, start, granted))
	}
}

func (s *serverImpl) handleLocationScouts(conn *websocket.Conn, session *connSession, packet *protocol.LocationScoutsPacket) {
	if session.slot < 1 {
		return
	}

	locations := make([]protocol.NetworkItem, 0, len(packet.Locations))
	for _, location := range packet.Locations {
		locations = append(locations, protocol.NetworkItem{
			Item:     location,
			Location: location,
			Player:   session.slot,
		})
	}
	s.writeError(conn, s.writePackets(conn, &protocol.LocationInfoPacket{
		Command:   protocol.CmdLocationInfo,
		Locations: locations,
	}))
}

func (s *serverImpl) handleSync(conn *websocket.Conn, session *connSession) {
	if session.slot < 1 {
		return
	}

	items, err := s.store.ItemsFrom(session.slot, 0)
	if err != nil {
		s.logger.Error("failed to load item log for sync: ", err)
		return
	}
	s.writeError(conn, s.writeItems(conn, 0, items))
}

func (s *serverImpl) handleSay(conn *websocket.Conn, session *connSession, packet *protocol.SayPacket) {
	if session.slot < 1 {
		return
	}

	s.writeError(conn, s.writePackets(conn, &protocol.PrintJSONPacket{
		Command: protocol.CmdPrintJSON,
		Type:    "Chat",
		Data: []protocol.TextPart{
			{Text: session.slotName + ": "},
			{Text: packet.Text},
		},
	}))
}

func (s *serverImpl) writeItems(conn *websocket.Conn, start int, items []rooms.GrantedItem) error {
	networkItems := make([]protocol.NetworkItem, 0, len(items))
	for _, item := range items {
		networkItems = append(networkItems, protocol.NetworkItem{
			Item:     item.Item,
			Location: item.Location,
			Player:   item.Player,
		})
	}
	return s.writePackets(conn, &protocol.ReceivedItemsPacket{
		Command: protocol.CmdReceivedItems,
		Index:   start,
		Items:   networkItems,
	})
}

func (s *serverImpl) writePackets(conn *websocket.Conn, packets ...protocol.Packet) error {
	message, err := protocol.MarshalPackets(packets...)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(message))
}

func (s *serverImpl) writeError(conn *websocket.Conn, err error) {
	if err != nil {
		s.logger.Error("write error: ", err)
	}
}
