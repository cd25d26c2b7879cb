package protocol

import (
	"encoding/json"
	"strings"
)

// Command names for packets sent by the server.
const (
	CmdRoomInfo          = "RoomInfo"
	CmdConnected         = "Connected"
	CmdConnectionRefused = "ConnectionRefused"
	CmdReceivedItems     = "ReceivedItems"
	CmdLocationInfo      = "LocationInfo"
	CmdRoomUpdate        = "RoomUpdate"
	CmdPrintJSON         = "PrintJSON"
	CmdBounced           = "Bounced"
)

// Command names for packets sent by the client.
const (
	CmdConnect        = "Connect"
	CmdLocationChecks = "LocationChecks"
	CmdLocationScouts = "LocationScouts"
	CmdStatusUpdate   = "StatusUpdate"
	CmdSay            = "Say"
	CmdBounce         = "Bounce"
	CmdSync           = "Sync"
)

// ClientStatus is the value carried by a StatusUpdate packet.
type ClientStatus int

const (
	StatusUnknown ClientStatus = 0
	StatusReady   ClientStatus = 10
	StatusPlaying ClientStatus = 20
	StatusGoal    ClientStatus = 30
)

// Version identifies the protocol version the client speaks.
type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

func NewVersion(major int, minor int, build int) Version {
	return Version{
		Major: major,
		Minor: minor,
		Build: build,
		Class: "Version",
	}
}

// NetworkItem is a single granted item as carried by
// ReceivedItems and LocationInfo packets.
type NetworkItem struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

// Packet is one decoded command packet. Concrete types are matched
// by the dispatcher, holding on to the Packet interface outside of
// a dispatch switch is rarely useful.
type Packet interface {
	Cmd() string
}

type RoomInfoPacket struct {
	Command  string  `json:"cmd"`
	SeedName string  `json:"seed_name"`
	Time     float64 `json:"time"`
	Password bool    `json:"password"`
	HintCost int     `json:"hint_cost"`
}

func (p *RoomInfoPacket) Cmd() string { return CmdRoomInfo }

type ConnectedPacket struct {
	Command          string          `json:"cmd"`
	Team             int             `json:"team"`
	Slot             int             `json:"slot"`
	MissingLocations []int64         `json:"missing_locations"`
	CheckedLocations []int64         `json:"checked_locations"`
	SlotData         json.RawMessage `json:"slot_data,omitempty"`
}

func (p *ConnectedPacket) Cmd() string { return CmdConnected }

type ConnectionRefusedPacket struct {
	Command string   `json:"cmd"`
	Errors  []string `json:"errors"`
}

func (p *ConnectionRefusedPacket) Cmd() string { return CmdConnectionRefused }

type ReceivedItemsPacket struct {
	Command string        `json:"cmd"`
	Index   int           `json:"index"`
	Items   []NetworkItem `json:"items"`
}

func (p *ReceivedItemsPacket) Cmd() string { return CmdReceivedItems }

type LocationInfoPacket struct {
	Command   string        `json:"cmd"`
	Locations []NetworkItem `json:"locations"`
}

func (p *LocationInfoPacket) Cmd() string { return CmdLocationInfo }

type RoomUpdatePacket struct {
	Command          string  `json:"cmd"`
	CheckedLocations []int64 `json:"checked_locations,omitempty"`
}

func (p *RoomUpdatePacket) Cmd() string { return CmdRoomUpdate }

// TextPart is one element of a PrintJSON data array. Only the text
// content matters to this client, other fields are ignored.
type TextPart struct {
	Text string `json:"text"`
}

type PrintJSONPacket struct {
	Command string     `json:"cmd"`
	Type    string     `json:"type,omitempty"`
	Data    []TextPart `json:"data"`
}

func (p *PrintJSONPacket) Cmd() string { return CmdPrintJSON }

// Text reassembles the multi-part message content into one string.
func (p *PrintJSONPacket) Text() string {
	var sb strings.Builder
	for _, part := range p.Data {
		sb.WriteString(part.Text)
	}
	return sb.String()
}

type BouncedPacket struct {
	Command string                 `json:"cmd"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (p *BouncedPacket) Cmd() string { return CmdBounced }

type ConnectPacket struct {
	Command       string   `json:"cmd"`
	Game          string   `json:"game"`
	Name          string   `json:"name"`
	Password      string   `json:"password,omitempty"`
	UUID          string   `json:"uuid"`
	Version       Version  `json:"version"`
	ItemsHandling int      `json:"items_handling"`
	Tags          []string `json:"tags"`
}

func (p *ConnectPacket) Cmd() string { return CmdConnect }

type LocationChecksPacket struct {
	Command   string  `json:"cmd"`
	Locations []int64 `json:"locations"`
}

func (p *LocationChecksPacket) Cmd() string { return CmdLocationChecks }

func NewLocationChecksPacket(locations []int64) *LocationChecksPacket {
	return &LocationChecksPacket{Command: CmdLocationChecks, Locations: locations}
}

type LocationScoutsPacket struct {
	Command      string  `json:"cmd"`
	Locations    []int64 `json:"locations"`
	CreateAsHint int     `json:"create_as_hint"`
}

func (p *LocationScoutsPacket) Cmd() string { return CmdLocationScouts }

func NewLocationScoutsPacket(locations []int64) *LocationScoutsPacket {
	return &LocationScoutsPacket{Command: CmdLocationScouts, Locations: locations}
}

type StatusUpdatePacket struct {
	Command string       `json:"cmd"`
	Status  ClientStatus `json:"status"`
}

func (p *StatusUpdatePacket) Cmd() string { return CmdStatusUpdate }

func NewStatusUpdatePacket(status ClientStatus) *StatusUpdatePacket {
	return &StatusUpdatePacket{Command: CmdStatusUpdate, Status: status}
}

type SayPacket struct {
	Command string `json:"cmd"`
	Text    string `json:"text"`
}

func (p *SayPacket) Cmd() string { return CmdSay }

func NewSayPacket(text string) *SayPacket {
	return &SayPacket{Command: CmdSay, Text: text}
}

type BouncePacket struct {
	Command string                 `json:"cmd"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (p *BouncePacket) Cmd() string { return CmdBounce }

func NewBouncePacket(data map[string]interface{}) *BouncePacket {
	return &BouncePacket{Command: CmdBounce, Data: data}
}

type SyncPacket struct {
	Command string `json:"cmd"`
}

func (p *SyncPacket) Cmd() string { return CmdSync }

func NewSyncPacket() *SyncPacket {
	return &SyncPacket{Command: CmdSync}
}

// UnknownPacket preserves a packet with an unrecognized command so
// the dispatcher can log it without interpreting the contents.
type UnknownPacket struct {
	Command string
	Raw     json.RawMessage
}

func (p *UnknownPacket) Cmd() string { return p.Command }

// MarshalPackets serializes packets as the JSON array of objects the
// wire protocol requires, even for a single packet.
func MarshalPackets(packets ...Packet) (string, error) {
	serialized, err := json.Marshal(packets)
	if err != nil {
		return "", err
	}
	return string(serialized), nil
}

type packetEnvelope struct {
	Command string `json:"cmd"`
}

// ParsePackets decodes an application payload into typed packets.
// The payload must be a JSON array of objects each carrying a "cmd"
// field. Elements that are not objects or lack a command are dropped,
// one bad element does not invalidate the rest of the payload.
func ParsePackets(payload string) ([]Packet, error) {
	var elements []json.RawMessage
	err := json.Unmarshal([]byte(payload), &elements)
	if err != nil {
		return nil, errProtocol("payload is not a JSON array of packets: %s", err)
	}

	packets := []Packet{}
	for _, element := range elements {
		envelope := packetEnvelope{}
		err := json.Unmarshal(element, &envelope)
		if err != nil || envelope.Command == "" {
			continue
		}

		packet, err := parsePacket(envelope.Command, element)
		if err != nil {
			continue
		}
		packets = append(packets, packet)
	}

	return packets, nil
}

func parsePacket(command string, element json.RawMessage) (Packet, error) {
	var target Packet
	switch command {
	case CmdRoomInfo:
		target = &RoomInfoPacket{}
	case CmdConnected:
		target = &ConnectedPacket{}
	case CmdConnectionRefused:
		target = &ConnectionRefusedPacket{}
	case CmdReceivedItems:
		target = &ReceivedItemsPacket{}
	case CmdLocationInfo:
		target = &LocationInfoPacket{}
	case CmdRoomUpdate:
		target = &RoomUpdatePacket{}
	case CmdPrintJSON:
		target = &PrintJSONPacket{}
	case CmdBounced:
		target = &BouncedPacket{}
	case CmdConnect:
		target = &ConnectPacket{}
	case CmdLocationChecks:
		target = &LocationChecksPacket{}
	case CmdLocationScouts:
		target = &LocationScoutsPacket{}
	case CmdStatusUpdate:
		target = &StatusUpdatePacket{}
	case CmdSay:
		target = &SayPacket{}
	case CmdBounce:
		target = &BouncePacket{}
	case CmdSync:
		target = &SyncPacket{}
	default:
		return &UnknownPacket{Command: command, Raw: element}, nil
	}

	err := json.Unmarshal(element, target)
	if err != nil {
		return nil, errProtocol("failed to decode %s packet: %s", command, err)
	}
	return target, nil
}
