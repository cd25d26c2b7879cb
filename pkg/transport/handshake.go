package transport

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hollowlog/archipelago-client/pkg/utils"
)

const headerTerminator = "\r\n\r\n"

// upgradeRequest renders the HTTP/1.1 upgrade request for the given
// target host and port with a freshly generated handshake key.
func upgradeRequest(host string, port int) string {
	key := base64.StdEncoding.EncodeToString(utils.RandomBytes(16))

	var sb strings.Builder
	sb.WriteString("GET / HTTP/1.1\r\n")
	sb.WriteString(fmt.Sprintf("Host: %s:%d\r\n", host, port))
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString(fmt.Sprintf("Sec-WebSocket-Key: %s\r\n", key))
	sb.WriteString("Sec-WebSocket-Version: 13\r\n")
	sb.WriteString("\r\n")
	return sb.String()
}

// readUpgradeResponse reads from conn until the header terminator is seen,
// bounded by the handshake timeout. It returns any bytes received beyond
// the terminator, those are the start of the frame stream and must not
// be discarded.
func readUpgradeResponse(conn net.Conn, timeout time.Duration) ([]byte, []byte, error) {
	deadline := time.Now().Add(timeout)
	err := conn.SetReadDeadline(deadline)
	if err != nil {
		return nil, nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	response := []byte{}
	chunk := make([]byte, 1024)
	for !bytes.Contains(response, []byte(headerTerminator)) {
		if time.Now().After(deadline) {
			return nil, nil, errors.New("timed out waiting for handshake response")
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			response = append(response, chunk[:n]...)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading handshake response: %w", err)
		}
	}

	terminatorIndex := bytes.Index(response, []byte(headerTerminator))
	headers := response[:terminatorIndex]
	leftover := response[terminatorIndex+len(headerTerminator):]
	return headers, leftover, nil
}

// validateUpgradeResponse checks for a successful protocol switch,
// a 101 status line together with an upgrade header naming websocket.
func validateUpgradeResponse(headers []byte) error {
	lines := strings.Split(string(headers), "\r\n")
	if len(lines) == 0 {
		return errors.New("empty handshake response")
	}

	statusParts := strings.SplitN(lines[0], " ", 3)
	if len(statusParts) < 2 || !strings.HasPrefix(statusParts[0], "HTTP/1.1") || statusParts[1] != "101" {
		return fmt.Errorf("server did not switch protocols: %q", lines[0])
	}

	for _, line := range lines[1:] {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.ToLower(strings.TrimSpace(parts[1]))
		if name == "upgrade" && value == "websocket" {
			return nil
		}
	}

	return errors.New("response is missing the websocket upgrade header")
}
