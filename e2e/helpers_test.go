//go:build e2e

package e2e

import (
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	if os.Getenv("TEST_VERBOSE") == "true" {
		return zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	return zerolog.New(io.Discard)
}

// packetSink listens on a loopback UDP port and stands in for the
// broadcast address of the backup target's subnet.
type packetSink struct {
	conn *net.UDPConn
}

func newPacketSink(t *testing.T) *packetSink {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &packetSink{conn: conn}
}

func (s *packetSink) port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// receive waits for the next magic packet and decodes it.
func (s *packetSink) receive(t *testing.T) *wol.MagicPacket {
	t.Helper()

	require.NoError(t, s.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 256)
	n, _, err := s.conn.ReadFromUDP(buf)
	require.NoError(t, err)

	var mp wol.MagicPacket
	require.NoError(t, mp.UnmarshalBinary(buf[:n]))
	return &mp
}
