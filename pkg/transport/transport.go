package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hollowlog/archipelago-client/pkg/protocol"
	"github.com/sirupsen/logrus"
)

type Params struct {
	// DialTimeout bounds the TCP connect, defaults to 5 seconds.
	DialTimeout time.Duration
	// HandshakeTimeout bounds the wait for the upgrade response,
	// defaults to 5 seconds.
	HandshakeTimeout time.Duration
	// ReadPollInterval is the read deadline applied to each socket
	// read so the loop can observe a shutdown request promptly,
	// defaults to 250 milliseconds.
	ReadPollInterval time.Duration
	// MessageQueueSize is the capacity of the decoded message queue,
	// defaults to 256.
	MessageQueueSize int
}

func (p *Params) applyDefaults() {
	if p.DialTimeout == 0 {
		p.DialTimeout = 5 * time.Second
	}
	if p.HandshakeTimeout == 0 {
		p.HandshakeTimeout = 5 * time.Second
	}
	if p.ReadPollInterval == 0 {
		p.ReadPollInterval = 250 * time.Millisecond
	}
	if p.MessageQueueSize == 0 {
		p.MessageQueueSize = 256
	}
}

// Transport owns one TCP connection upgraded to a WebSocket stream.
// A background goroutine reads and decodes frames, fully decoded text
// messages are queued for the owner to drain via Messages. Sends are
// serialized and may be issued from any goroutine.
type Transport struct {
	params *Params
	logger *logrus.Logger

	mu       sync.Mutex
	conn     net.Conn
	open     bool
	closeErr error

	writeMu sync.Mutex

	messages chan string
	stop     chan struct{}
	done     chan struct{}
}

func NewDefaultTransport(params *Params, logger *logrus.Logger) *Transport {
	if params == nil {
		params = &Params{}
	}
	params.applyDefaults()
	return &Transport{
		params: params,
		logger: logger,
	}
}

// Connect opens the TCP connection, performs the HTTP upgrade handshake
// and starts the background read loop. Any bytes received beyond the
// handshake headers are treated as the start of the frame stream.
func (t *Transport) Connect(host string, port int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.open {
		return errTransport("connect", errors.New("transport is already connected"))
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", address, t.params.DialTimeout)
	if err != nil {
		return errTransport("connect", err)
	}

	request := upgradeRequest(host, port)
	_, err = conn.Write([]byte(request))
	if err != nil {
		conn.Close()
		return errTransport("handshake", err)
	}

	headers, leftover, err := readUpgradeResponse(conn, t.params.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return errTransport("handshake", err)
	}

	err = validateUpgradeResponse(headers)
	if err != nil {
		conn.Close()
		return errTransport("handshake", err)
	}

	t.logger.Debug("transport: handshake complete, ", len(leftover), " bytes of early frame data")

	t.conn = conn
	t.open = true
	t.closeErr = nil
	t.messages = make(chan string, t.params.MessageQueueSize)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.readLoop(leftover)
	return nil
}

// Send frames the text payload and writes it to the socket. Safe to
// call concurrently with the read loop and with other senders.
func (t *Transport) Send(text string) error {
	t.mu.Lock()
	conn := t.conn
	open := t.open
	t.mu.Unlock()

	if !open || conn == nil {
		return errTransport("send", errors.New("transport is not connected"))
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_, err := conn.Write(protocol.EncodeText([]byte(text)))
	if err != nil {
		return errTransport("send", err)
	}
	return nil
}

// Messages is the queue of fully decoded inbound text messages.
// The channel is closed when the read loop exits.
func (t *Transport) Messages() <-chan string {
	return t.messages
}

// Done is closed once the read loop has exited.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err reports the cause recorded when the connection closed,
// nil for a locally requested disconnect.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeErr
}

// Disconnect best-effort sends a close frame, then unconditionally
// closes the socket and joins the read loop. Calling it twice, or
// without ever connecting, is a no-op.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return
	}
	t.open = false
	conn := t.conn
	stop := t.stop
	done := t.done
	t.mu.Unlock()

	t.writeControl(protocol.OpcodeClose, nil)

	close(stop)
	conn.Close()
	<-done
}

func (t *Transport) readLoop(initial []byte) {
	defer func() {
		close(t.messages)
		close(t.done)
	}()

	buffer := initial
	chunk := make([]byte, 4096)
	reassembly := newTextReassembly()

	// Frame bytes that arrived together with the handshake response
	// are decoded before the first socket read.
	buffer, ok := t.drainFrames(buffer, reassembly)
	if !ok {
		return
	}

	for {
		select {
		case <-t.stop:
			return
		default:
		}

		t.conn.SetReadDeadline(time.Now().Add(t.params.ReadPollInterval))
		n, err := t.conn.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			buffer, ok = t.drainFrames(buffer, reassembly)
			if !ok {
				return
			}
		}

		if err != nil {
			netErr, isNetErr := err.(net.Error)
			if isNetErr && netErr.Timeout() {
				continue
			}
			if t.stopRequested() {
				return
			}
			if errors.Is(err, io.EOF) {
				// A zero-byte read is a server-initiated close.
				t.recordClose(errors.New("connection closed by server"))
			} else {
				t.recordClose(fmt.Errorf("socket read failed: %w", err))
			}
			return
		}
	}
}

// drainFrames decodes every complete frame at the start of buffer and
// returns the unconsumed remainder. The boolean result is false when
// the loop must stop.
func (t *Transport) drainFrames(buffer []byte, reassembly *textReassembly) ([]byte, bool) {
	for {
		frame, consumed, err := protocol.DecodeFrame(buffer)
		if err != nil {
			t.recordClose(err)
			return buffer, false
		}
		if frame == nil {
			// Partial frame, wait for more bytes.
			return buffer, true
		}

		buffer = buffer[consumed:]
		if !t.handleFrame(frame, reassembly) {
			return buffer, false
		}
	}
}

func (t *Transport) handleFrame(frame *protocol.Frame, reassembly *textReassembly) bool {
	switch frame.Opcode {
	case protocol.OpcodeText, protocol.OpcodeContinuation:
		message, complete := reassembly.add(frame)
		if complete {
			return t.deliver(message)
		}
	case protocol.OpcodePing:
		t.writeControl(protocol.OpcodePong, frame.Payload)
	case protocol.OpcodePong:
		// Unsolicited pongs carry no meaning for this protocol.
	case protocol.OpcodeClose:
		t.writeControl(protocol.OpcodeClose, nil)
		t.recordClose(errors.New("close frame received from server"))
		return false
	default:
		t.logger.Debug("transport: ignoring frame with opcode ", frame.Opcode)
	}
	return true
}

func (t *Transport) deliver(message string) bool {
	select {
	case t.messages <- message:
		return true
	case <-t.stop:
		return false
	}
}

func (t *Transport) writeControl(opcode protocol.Opcode, payload []byte) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, err := t.conn.Write(protocol.EncodeControl(opcode, payload))
	t.conn.SetWriteDeadline(time.Time{})
	if err != nil {
		t.logger.Debug("transport: control frame write failed: ", err)
	}
}

func (t *Transport) recordClose(cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr == nil {
		t.closeErr = cause
	}
}

func (t *Transport) stopRequested() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// textReassembly accumulates fragmented text messages. The client never
// produces fragmentation but a server is free to.
type textReassembly struct {
	active  bool
	partial []byte
}

func newTextReassembly() *textReassembly {
	return &textReassembly{}
}

func (r *textReassembly) add(frame *protocol.Frame) (string, bool) {
	if frame.Opcode == protocol.OpcodeContinuation && !r.active {
		// Continuation of a binary message, which this client
		// does not interpret.
		return "", false
	}

	if frame.Opcode == protocol.OpcodeText {
		// A new text frame supersedes any half-assembled message,
		// the abandoned fragments must not leak into it.
		r.active = false
		r.partial = nil
		if frame.Fin {
			return string(frame.Payload), true
		}
	}

	r.active = true
	r.partial = append(r.partial, frame.Payload...)
	if !frame.Fin {
		return "", false
	}

	message := string(r.partial)
	r.active = false
	r.partial = nil
	return message, true
}
