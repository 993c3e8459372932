package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/bakeup/internal/config"
	"github.com/fgeck/bakeup/internal/logging"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFailure(t *testing.T) {
	var buf bytes.Buffer

	logFailure(logging.NewRegistry(&buf), fmt.Errorf("%w: backups is required", config.ErrConfig))

	assert.Equal(t, "bakeup - ERROR - bakeup failed error=invalid configuration: backups is required\n", buf.String())
}

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bakeup.yaml")
	content := `
backups:
  - source: /home/
    dest: /mnt/backup/home
    excludes: [.cache]
    before:
      - echo start
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", "") })
	registry = logging.NewRegistry(&bytes.Buffer{})

	var out bytes.Buffer
	validateCmd.SetOut(&out)
	require.NoError(t, validateConfig(validateCmd, nil))

	assert.Contains(t, out.String(), "Configuration is valid!")
	assert.Contains(t, out.String(), `  before: sh -c "echo start"`)
	assert.Contains(t, out.String(), "  sync: rsync -av --delete-before --force --stats --exclude .cache /home/ /mnt/backup/home\n")
}

func TestValidateCommand_MissingConfig(t *testing.T) {
	viper.Set("config", "")
	registry = logging.NewRegistry(&bytes.Buffer{})

	err := validateConfig(validateCmd, nil)

	assert.EqualError(t, err, "config file is required")
}
