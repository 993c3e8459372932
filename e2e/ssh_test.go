//go:build e2e

package e2e

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/fgeck/bakeup/internal/config"
	"github.com/fgeck/bakeup/internal/models"
	"github.com/fgeck/bakeup/internal/services/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cryptossh "golang.org/x/crypto/ssh"
)

// loadSSHTarget builds the ssh-shutdown section the way a user writes it,
// with the key path taken from the environment at load time.
func loadSSHTarget(t *testing.T) models.SSHShutdownConfig {
	t.Helper()

	host := os.Getenv("TEST_SSH_HOST")
	if host == "" {
		t.Skip("TEST_SSH_HOST not set")
	}
	if os.Getenv("TEST_SSH_KEY_PATH") == "" {
		t.Skip("TEST_SSH_KEY_PATH not set")
	}
	port := os.Getenv("TEST_SSH_PORT")
	if port == "" {
		port = "22"
	}
	user := os.Getenv("TEST_SSH_USER")
	if user == "" {
		user = "root"
	}
	targetOS := os.Getenv("TEST_SSH_OS")
	if targetOS == "" {
		targetOS = "linux"
	}

	cfg, err := config.NewParser().LoadReader(fmt.Sprintf(`
backups: []
ssh-shutdown:
  host: %s
  port: %s
  username: %s
  key-path: ${TEST_SSH_KEY_PATH}
  os: %s
  shutdown-delay: 60
`, host, port, user, targetOS))
	require.NoError(t, err)
	require.NotNil(t, cfg.SSHShutdown)
	return *cfg.SSHShutdown
}

func throwawayKey(t *testing.T) []byte {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := cryptossh.MarshalPrivateKey(key, "")
	require.NoError(t, err)
	return pem.EncodeToMemory(block)
}

// TestSSHCheckTarget_E2E is what `bakeup validate --check-target` runs.
func TestSSHCheckTarget_E2E(t *testing.T) {
	cfg := loadSSHTarget(t)

	result, err := ssh.New(testLogger()).TestConnection(context.Background(), cfg)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "OK")
}

func TestSSHShutdown_CustomCommand_E2E(t *testing.T) {
	cfg := loadSSHTarget(t)
	// harmless stand-in for a shutdown
	cfg.Command = "echo bakeup-e2e"

	result, err := ssh.New(testLogger()).Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.True(t, result.CommandRun)
	assert.Contains(t, result.Output, "bakeup-e2e")
}

func TestSSHShutdown_CustomCommandFailureIsTolerated_E2E(t *testing.T) {
	cfg := loadSSHTarget(t)
	cfg.Command = "exit 3"

	result, err := ssh.New(testLogger()).Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
	assert.NoError(t, result.Error)
}

func TestSSHShutdown_DefaultCommandForTargetOS_E2E(t *testing.T) {
	cfg := loadSSHTarget(t)

	switch cfg.OS {
	case "windows":
		assert.Equal(t, "shutdown /s /t 3600", ssh.ShutdownCommand(cfg))
	default:
		assert.Equal(t, "sudo shutdown -h +60", ssh.ShutdownCommand(cfg))
	}
}

func TestSSHUnreachableTarget_E2E(t *testing.T) {
	cfg := models.SSHShutdownConfig{
		Host:       "192.0.2.1", // TEST-NET-1, never routed
		Port:       22,
		Username:   "root",
		PrivateKey: throwawayKey(t),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	result, err := ssh.New(testLogger()).TestConnection(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestSSHShutdown_CancelledRunSendsNothing_E2E(t *testing.T) {
	cfg := models.SSHShutdownConfig{
		Host:       "192.0.2.1",
		Port:       22,
		Username:   "root",
		PrivateKey: throwawayKey(t),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := ssh.New(testLogger()).Shutdown(ctx, cfg)

	require.NoError(t, err)
	assert.False(t, result.CommandRun)
	assert.ErrorIs(t, result.Error, context.Canceled)
}

// WARNING: powers the target down. Only runs when explicitly enabled.
func TestSSHShutdown_E2E(t *testing.T) {
	if os.Getenv("TEST_SSH_SHUTDOWN_ENABLED") != "true" {
		t.Skip("TEST_SSH_SHUTDOWN_ENABLED is not true")
	}
	cfg := loadSSHTarget(t)

	result, err := ssh.New(testLogger()).Shutdown(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.CommandRun)
}
