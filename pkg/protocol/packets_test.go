package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePacketsDecodesServerBatch(t *testing.T) {
	payload := `[
		{"cmd": "RoomInfo", "seed_name": "seed-1234", "password": false},
		{"cmd": "Connected", "slot": 3, "team": 0, "missing_locations": [11, 12], "checked_locations": [10]},
		{"cmd": "ReceivedItems", "index": 2, "items": [{"item": 9001, "location": 11, "player": 3}]}
	]`

	packets, err := ParsePackets(payload)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	roomInfo, ok := packets[0].(*RoomInfoPacket)
	require.True(t, ok)
	assert.Equal(t, "seed-1234", roomInfo.SeedName)

	connected, ok := packets[1].(*ConnectedPacket)
	require.True(t, ok)
	assert.Equal(t, 3, connected.Slot)
	assert.Equal(t, 0, connected.Team)
	assert.Equal(t, []int64{11, 12}, connected.MissingLocations)

	received, ok := packets[2].(*ReceivedItemsPacket)
	require.True(t, ok)
	assert.Equal(t, 2, received.Index)
	require.Len(t, received.Items, 1)
	assert.Equal(t, int64(9001), received.Items[0].Item)
	assert.Equal(t, int64(11), received.Items[0].Location)
	assert.Equal(t, 3, received.Items[0].Player)
}

func TestParsePacketsRejectsNonArrayPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "object payload", payload: `{"cmd": "RoomInfo"}`},
		{name: "not json at all", payload: `garbage`},
		{name: "empty string", payload: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packets, err := ParsePackets(tt.payload)
			require.Error(t, err)
			assert.Nil(t, packets)

			protocolErr := &ProtocolError{}
			assert.ErrorAs(t, err, &protocolErr)
		})
	}
}

func TestParsePacketsDropsElementsWithoutCommand(t *testing.T) {
	payload := `[{"slot": 3}, 42, {"cmd": "Bounced"}]`

	packets, err := ParsePackets(payload)
	require.NoError(t, err)
	require.Len(t, packets, 1)
	assert.Equal(t, CmdBounced, packets[0].Cmd())
}

func TestParsePacketsPreservesUnknownCommands(t *testing.T) {
	payload := `[{"cmd": "DataPackage", "data": {}}]`

	packets, err := ParsePackets(payload)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	unknown, ok := packets[0].(*UnknownPacket)
	require.True(t, ok)
	assert.Equal(t, "DataPackage", unknown.Command)
}

func TestPrintJSONTextReassemblesParts(t *testing.T) {
	payload := `[{"cmd": "PrintJSON", "data": [{"text": "Nova"}, {"text": " found "}, {"text": "a key"}]}]`

	packets, err := ParsePackets(payload)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	printJSON, ok := packets[0].(*PrintJSONPacket)
	require.True(t, ok)
	assert.Equal(t, "Nova found a key", printJSON.Text())
}

func TestMarshalPacketsAlwaysProducesArray(t *testing.T) {
	message, err := MarshalPackets(NewSyncPacket())
	require.NoError(t, err)
	assert.Equal(t, `[{"cmd":"Sync"}]`, message)
}

func TestConnectPacketOmitsEmptyPassword(t *testing.T) {
	packet := &ConnectPacket{
		Command:       CmdConnect,
		Game:          "Selaco",
		Name:          "Nova",
		UUID:          "uuid-1",
		Version:       NewVersion(0, 5, 0),
		ItemsHandling: 0b111,
		Tags:          []string{"AP"},
	}

	message, err := MarshalPackets(packet)
	require.NoError(t, err)
	assert.NotContains(t, message, "password")
	assert.Contains(t, message, `"class":"Version"`)
	assert.Contains(t, message, `"items_handling":7`)

	packet.Password = "hunter2"
	message, err = MarshalPackets(packet)
	require.NoError(t, err)
	assert.Contains(t, message, `"password":"hunter2"`)
}

func TestStatusUpdateCarriesNumericStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   ClientStatus
		expected string
	}{
		{name: "ready", status: StatusReady, expected: `"status":10`},
		{name: "playing", status: StatusPlaying, expected: `"status":20`},
		{name: "goal", status: StatusGoal, expected: `"status":30`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, err := MarshalPackets(NewStatusUpdatePacket(tt.status))
			require.NoError(t, err)
			assert.Contains(t, message, tt.expected)
		})
	}
}
