// Package wol wakes the backup target before a run.
package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fgeck/bakeup/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// DefaultPort is the UDP port magic packets go to when none is configured.
const DefaultPort = 9

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// PacketSender sends a magic packet for mac to addr (host:port).
type PacketSender interface {
	Wake(addr string, mac net.HardwareAddr) error
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// UDPSender sends magic packets over UDP using mdlayher/wol.
type UDPSender struct{}

// Wake opens a UDP socket, sends one magic packet and closes the socket.
func (UDPSender) Wake(addr string, mac net.HardwareAddr) error {
	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to open UDP socket: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(addr, mac); err != nil {
		return fmt.Errorf("failed to send magic packet to %s: %w", addr, err)
	}
	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	sender     PacketSender
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		sender:     UDPSender{},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

// NewWithClients creates a new WOL service with a custom sender and HTTP client (for testing).
func NewWithClients(logger zerolog.Logger, sender PacketSender, httpClient HTTPClient) *Impl {
	return &Impl{
		sender:     sender,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ResolveTarget returns the host:port the magic packet is sent to and the
// hardware address it carries.
func ResolveTarget(cfg models.WOLConfig) (string, net.HardwareAddr, error) {
	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		return "", nil, fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
	}
	ip := net.ParseIP(cfg.BroadcastIP)
	if ip == nil {
		return "", nil, fmt.Errorf("invalid broadcast IP: %s", cfg.BroadcastIP)
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(port)), mac, nil
}

// Wake sends a magic packet and, when PollURL is set, waits until the
// target answers HTTP requests and then for StabilizeWait. Failures are
// reported in the result, never as the returned error.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()
	defer func() { result.WaitDuration = time.Since(start) }()

	addr, mac, err := ResolveTarget(cfg)
	if err != nil {
		result.Error = err
		return result, nil
	}

	s.logger.Info().Str("mac", mac.String()).Str("addr", addr).Msg("Waking backup target")
	if err := s.sender.Wake(addr, mac); err != nil {
		result.Error = err
		return result, nil
	}
	result.PacketSent = true

	if cfg.PollURL != "" {
		s.logger.Info().Str("url", cfg.PollURL).Dur("timeout", cfg.Timeout).Msg("Waiting for backup target")
		if err := s.awaitTarget(ctx, cfg); err != nil {
			result.Error = err
			return result, nil
		}
		if err := settle(ctx, cfg.StabilizeWait); err != nil {
			result.Error = err
			return result, nil
		}
	}

	result.TargetReady = true
	return result, nil
}

// awaitTarget polls PollURL every PollInterval until any HTTP response
// arrives or Timeout elapses.
func (s *Impl) awaitTarget(ctx context.Context, cfg models.WOLConfig) error {
	pollCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	for {
		if s.answers(pollCtx, cfg.PollURL) {
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("timeout waiting for target at %s", cfg.PollURL)
		case <-time.After(cfg.PollInterval):
		}
	}
}

// answers reports whether url returned a response, whatever its status.
func (s *Impl) answers(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			s.logger.Debug().Err(err).Msg("backup target not ready yet")
		}
		return false
	}
	_ = resp.Body.Close()
	return true
}

func settle(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
