//go:build e2e

package e2e

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fgeck/bakeup/internal/models"
	"github.com/fgeck/bakeup/internal/services/wol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWOL_SendsMagicPacket_E2E(t *testing.T) {
	sink := newPacketSink(t)

	svc := wol.New(testLogger())
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:  "aa:bb:cc:dd:ee:ff",
		BroadcastIP: "127.0.0.1",
		Port:        sink.port(),
	})

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)

	mp := sink.receive(t)
	expected, _ := net.ParseMAC("aa:bb:cc:dd:ee:ff")
	assert.Equal(t, expected, mp.Target)
	assert.Empty(t, mp.Password)
}

func TestWOL_WaitsForBootingTarget_E2E(t *testing.T) {
	sink := newPacketSink(t)

	// drops connections until the third request, like a host still booting
	var requests atomic.Int32
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	svc := wol.New(testLogger())
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "127.0.0.1",
		Port:          sink.port(),
		PollURL:       target.URL,
		Timeout:       5 * time.Second,
		PollInterval:  50 * time.Millisecond,
		StabilizeWait: 100 * time.Millisecond,
	})

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, requests.Load(), int32(3))
	assert.GreaterOrEqual(t, result.WaitDuration, 100*time.Millisecond)
	sink.receive(t)
}

func TestWOL_ErrorStatusCountsAsAwake_E2E(t *testing.T) {
	sink := newPacketSink(t)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer target.Close()

	svc := wol.New(testLogger())
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "127.0.0.1",
		Port:         sink.port(),
		PollURL:      target.URL,
		Timeout:      time.Second,
		PollInterval: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
}

func TestWOL_TargetNeverAnswers_E2E(t *testing.T) {
	sink := newPacketSink(t)

	// nothing listens once the server is closed
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target.Close()

	svc := wol.New(testLogger())
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "127.0.0.1",
		Port:         sink.port(),
		PollURL:      target.URL,
		Timeout:      200 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout waiting for target")
}

// TestRealWOL_E2E wakes a real machine; only runs when configured.
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}
	broadcast := os.Getenv("TEST_WOL_BROADCAST_IP")
	if broadcast == "" {
		broadcast = "255.255.255.255"
	}
	pollURL := os.Getenv("TEST_WOL_POLL_URL")

	svc := wol.New(testLogger())
	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:    mac,
		BroadcastIP:   broadcast,
		PollURL:       pollURL,
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	})

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
}
