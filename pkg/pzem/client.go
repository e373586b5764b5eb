package pzem

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Transport string

const (
	TransportStream   Transport = "stream"   // RTU records over a TCP connection
	TransportDatagram Transport = "datagram" // RTU records as UDP datagrams
)

const DefaultTimeout = 2 * time.Second

// Endpoint identifies one meter. Immutable after construction.
type Endpoint struct {
	Transport   Transport
	Host        string
	Port        uint
	UnitAddress uint8
	Timeout     time.Duration
}

// MeterClient is the protocol surface the rest of the service depends on.
type MeterClient interface {
	ReadInputRegisters(start, count uint16) ([]uint16, error)
	ReadMeasurements() (*Measurements, error)
	ResetEnergy() error
	Close() error
}

// resetAddrMode records which addressing the device accepted for the
// vendor reset command. Decided once per client, then memoized.
type resetAddrMode int

const (
	resetAddrUnresolved resetAddrMode = iota
	resetAddrUnit                     // configured unit address
	resetAddrGeneral                  // Peacefair general address 0xF8
	resetAddrBroadcast                // unaddressed, fire-and-forget
)

// Client talks to a single meter. Connection establishment is lazy and
// retried transparently; after any decode-level failure the transport is
// closed so the next call starts from a clean connection. All operations
// are serialized: the device cannot interleave transactions.
type Client struct {
	endpoint Endpoint
	logger   *zap.Logger

	mu        sync.Mutex
	conn      net.Conn
	resetMode resetAddrMode
}

func NewClient(endpoint Endpoint, logger *zap.Logger) (*Client, error) {
	switch endpoint.Transport {
	case TransportStream, TransportDatagram:
	default:
		return nil, fmt.Errorf("pzem: unknown transport %q", endpoint.Transport)
	}
	if endpoint.Host == "" {
		return nil, errors.New("pzem: endpoint host required")
	}
	if endpoint.Timeout <= 0 {
		endpoint.Timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		logger:   logger.With(zap.String("meter", fmt.Sprintf("%s:%d", endpoint.Host, endpoint.Port))),
	}, nil
}

// ReadInputRegisters reads exactly count registers starting at start.
func (c *Client) ReadInputRegisters(start, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, err := c.roundTrip(buildReadRequest(c.endpoint.UnitAddress, start, count))
	if err != nil {
		return nil, err
	}
	regs, err := parseReadResponse(frame, c.endpoint.UnitAddress, count)
	if err != nil {
		// Assume protocol desync: drop the transport so the next call
		// reconnects instead of reading a stale tail.
		c.closeLocked()
		return nil, err
	}
	return regs, nil
}

// ReadMeasurements reads and decodes the full measurement block.
func (c *Client) ReadMeasurements() (*Measurements, error) {
	regs, err := c.ReadInputRegisters(MeasurementRegisterStart, MeasurementRegisterCount)
	if err != nil {
		return nil, err
	}
	return Decode(regs)
}

// ResetEnergy issues the vendor reset command. Older firmware only answers
// the general address, so the first call probes the configured unit
// address, then the general address, and memoizes whichever acked. If
// neither does, the client degrades to broadcast for its lifetime: the
// first call still sends the broadcast and returns AddressNegotiationError
// so the caller knows the reset is unconfirmed; later calls broadcast
// silently.
func (c *Client) ResetEnergy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.resetMode {
	case resetAddrUnit:
		return c.resetAt(c.endpoint.UnitAddress)
	case resetAddrGeneral:
		return c.resetAt(GeneralAddress)
	case resetAddrBroadcast:
		return c.resetBroadcast()
	}

	// First call: negotiate.
	if err := c.resetAt(c.endpoint.UnitAddress); err == nil {
		c.resetMode = resetAddrUnit
		return nil
	}
	if err := c.resetAt(GeneralAddress); err == nil {
		c.resetMode = resetAddrGeneral
		return nil
	}
	c.resetMode = resetAddrBroadcast
	negErr := &AddressNegotiationError{Unit: c.endpoint.UnitAddress}
	c.logger.Warn("reset address negotiation failed", zap.Error(negErr))
	if err := c.resetBroadcast(); err != nil {
		return err
	}
	return negErr
}

// Close releases the transport. The client stays usable: the next
// operation reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) resetAt(addr byte) error {
	frame, err := c.roundTrip(buildResetRequest(addr))
	if err != nil {
		return err
	}
	if err := parseResetResponse(frame, addr); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

// resetBroadcast sends the reset without addressing a unit. Broadcast
// frames get no reply; the effect shows up in the next poll.
func (c *Client) resetBroadcast() error {
	if err := c.ensureConn(); err != nil {
		return err
	}
	if err := c.write(buildResetRequest(BroadcastAddress)); err != nil {
		c.closeLocked()
		return err
	}
	return nil
}

func (c *Client) roundTrip(req []byte) ([]byte, error) {
	if err := c.ensureConn(); err != nil {
		return nil, err
	}
	if err := c.write(req); err != nil {
		c.closeLocked()
		return nil, err
	}
	frame, err := c.readFrame()
	if err != nil {
		c.closeLocked()
		return nil, err
	}
	return frame, nil
}

func (c *Client) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	network := "tcp"
	if c.endpoint.Transport == TransportDatagram {
		network = "udp"
	}
	conn, err := net.DialTimeout(network, fmt.Sprintf("%s:%d", c.endpoint.Host, c.endpoint.Port), c.endpoint.Timeout)
	if err != nil {
		return &IOError{Op: "connect", Err: err}
	}
	c.logger.Debug("transport connected", zap.String("network", network))
	c.conn = conn
	return nil
}

func (c *Client) write(frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.endpoint.Timeout)); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if _, err := c.conn.Write(frame); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	return nil
}

// readFrame reads one complete response frame. Datagram transports
// deliver whole frames; the stream transport is reassembled from the
// response structure since RTU has no length prefix.
func (c *Client) readFrame() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.endpoint.Timeout)); err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	if c.endpoint.Transport == TransportDatagram {
		buf := make([]byte, 256)
		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, &IOError{Op: "read", Err: err}
		}
		return buf[:n], nil
	}
	return c.readFrameStream()
}

func (c *Client) readFrameStream() ([]byte, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(c.conn, head); err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	var rest []byte
	switch {
	case head[1]&exceptionFlag != 0:
		// exception code + CRC
		rest = make([]byte, 3)
	case head[1] == fnResetEnergy:
		// CRC only
		rest = make([]byte, 2)
	case head[1] == fnReadInputRegisters:
		cnt := make([]byte, 1)
		if _, err := io.ReadFull(c.conn, cnt); err != nil {
			return nil, &IOError{Op: "read", Err: err}
		}
		head = append(head, cnt[0])
		rest = make([]byte, int(cnt[0])+2)
	default:
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("unexpected function code 0x%02X", head[1])}
	}
	if _, err := io.ReadFull(c.conn, rest); err != nil {
		return nil, &IOError{Op: "read", Err: err}
	}
	return append(head, rest...), nil
}

func (c *Client) closeLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
}

// ensure interface compliance
var _ MeterClient = (*Client)(nil)
