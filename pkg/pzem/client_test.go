package pzem

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// meterServer fakes a meter speaking RTU over TCP on the loopback
// interface. Reset acks can be limited to the general address to exercise
// the negotiation path.
type meterServer struct {
	ln        net.Listener
	registers []uint16

	mu          sync.Mutex
	conns       int
	resetAddrs  []byte
	ackUnit     bool
	ackGeneral  bool
	corruptNext bool
}

func startMeterServer(t *testing.T, ackUnit, ackGeneral bool) *meterServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &meterServer{
		ln:         ln,
		registers:  []uint16{2300, 100, 0, 50, 0, 0, 0, 500, 95},
		ackUnit:    ackUnit,
		ackGeneral: ackGeneral,
	}
	go s.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *meterServer) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *meterServer) serve(conn net.Conn) {
	defer conn.Close()
	for {
		head := make([]byte, 2)
		if _, err := io.ReadFull(conn, head); err != nil {
			return
		}
		switch head[1] {
		case fnReadInputRegisters:
			rest := make([]byte, 6)
			if _, err := io.ReadFull(conn, rest); err != nil {
				return
			}
			start := binary.BigEndian.Uint16(rest[0:2])
			count := binary.BigEndian.Uint16(rest[2:4])
			s.respondRead(conn, head[0], start, count)
		case fnResetEnergy:
			rest := make([]byte, 2)
			if _, err := io.ReadFull(conn, rest); err != nil {
				return
			}
			s.mu.Lock()
			s.resetAddrs = append(s.resetAddrs, head[0])
			ack := head[0] == GeneralAddress && s.ackGeneral || head[0] != GeneralAddress && head[0] != BroadcastAddress && s.ackUnit
			s.mu.Unlock()
			if ack {
				conn.Write(buildResetRequest(head[0]))
			}
			// no ack: silence, the client times out
		default:
			return
		}
	}
}

func (s *meterServer) respondRead(conn net.Conn, unit byte, start, count uint16) {
	resp := []byte{unit, fnReadInputRegisters, byte(count * 2)}
	for i := uint16(0); i < count; i++ {
		var v uint16
		if int(start+i) < len(s.registers) {
			v = s.registers[start+i]
		}
		resp = binary.BigEndian.AppendUint16(resp, v)
	}
	resp = appendCRC(resp)
	s.mu.Lock()
	if s.corruptNext {
		s.corruptNext = false
		resp[len(resp)-1] ^= 0xFF
	}
	s.mu.Unlock()
	conn.Write(resp)
}

func (s *meterServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *meterServer) resetAddresses() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.resetAddrs...)
}

func (s *meterServer) endpoint() Endpoint {
	addr := s.ln.Addr().(*net.TCPAddr)
	return Endpoint{
		Transport:   TransportStream,
		Host:        "127.0.0.1",
		Port:        uint(addr.Port),
		UnitAddress: 1,
		Timeout:     300 * time.Millisecond,
	}
}

func TestClientReadMeasurements(t *testing.T) {
	s := startMeterServer(t, true, true)
	client, err := NewClient(s.endpoint(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	m, err := client.ReadMeasurements()
	require.NoError(t, err)

	assert.Equal(t, 230.0, m.Voltage)
	assert.Equal(t, 50.0, m.Frequency)
	assert.Equal(t, 0.95, m.PowerFactor)
}

func TestClientReconnectsAfterMalformedResponse(t *testing.T) {
	s := startMeterServer(t, true, true)
	client, err := NewClient(s.endpoint(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.ReadMeasurements()
	require.NoError(t, err)

	s.mu.Lock()
	s.corruptNext = true
	s.mu.Unlock()

	_, err = client.ReadMeasurements()
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)

	// the bad frame dropped the transport; the next read reconnects
	_, err = client.ReadMeasurements()
	require.NoError(t, err)
	assert.Equal(t, 2, s.connCount())
}

func TestClientResetNegotiatesGeneralAddress(t *testing.T) {
	s := startMeterServer(t, false, true)
	client, err := NewClient(s.endpoint(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.ResetEnergy())
	assert.Equal(t, []byte{1, GeneralAddress}, s.resetAddresses())

	// the negotiated mode is memoized: no second probe
	require.NoError(t, client.ResetEnergy())
	assert.Equal(t, []byte{1, GeneralAddress, GeneralAddress}, s.resetAddresses())
}

func TestClientResetPrefersUnitAddress(t *testing.T) {
	s := startMeterServer(t, true, true)
	client, err := NewClient(s.endpoint(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.ResetEnergy())
	require.NoError(t, client.ResetEnergy())
	assert.Equal(t, []byte{1, 1}, s.resetAddresses())
}

func TestClientResetFallsBackToBroadcast(t *testing.T) {
	s := startMeterServer(t, false, false)
	client, err := NewClient(s.endpoint(), zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	// both addressed probes time out; broadcast is still sent but the
	// first call reports that the reset is unconfirmed
	var negErr *AddressNegotiationError
	require.ErrorAs(t, client.ResetEnergy(), &negErr)
	assert.Equal(t, byte(1), negErr.Unit)
	require.Eventually(t, func() bool {
		return len(s.resetAddresses()) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{1, GeneralAddress, BroadcastAddress}, s.resetAddresses())

	// the broadcast mode is memoized: later calls succeed silently
	require.NoError(t, client.ResetEnergy())
	require.Eventually(t, func() bool {
		return len(s.resetAddresses()) == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []byte{1, GeneralAddress, BroadcastAddress, BroadcastAddress}, s.resetAddresses())
}

func TestClientUnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint(ln.Addr().(*net.TCPAddr).Port)
	ln.Close()

	client, err := NewClient(Endpoint{
		Transport:   TransportStream,
		Host:        "127.0.0.1",
		Port:        port,
		UnitAddress: 1,
		Timeout:     300 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.ReadMeasurements()
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestClientDatagramTransport(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	go func() {
		buf := make([]byte, 256)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			if n < 2 || buf[1] != fnReadInputRegisters {
				continue
			}
			resp := []byte{buf[0], fnReadInputRegisters, 18,
				0x08, 0xFC, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0xF4, 0, 95}
			pc.WriteTo(appendCRC(resp), addr)
		}
	}()

	client, err := NewClient(Endpoint{
		Transport:   TransportDatagram,
		Host:        "127.0.0.1",
		Port:        uint(pc.LocalAddr().(*net.UDPAddr).Port),
		UnitAddress: 1,
		Timeout:     300 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	m, err := client.ReadMeasurements()
	require.NoError(t, err)
	assert.Equal(t, 230.0, m.Voltage)
	assert.Equal(t, 50.0, m.Frequency)
}
