package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "8083", cfg.App.Port)
	require.Equal(t, "local", cfg.Storage.Driver)
	require.Equal(t, 1600*time.Millisecond, cfg.Client.TypingDelay)
	require.Equal(t, 10*time.Second, cfg.Chat.TypingTTL)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: "9000"
auth:
  session_secret: from-file
storage:
  driver: s3
  bucket: media
`), 0o600))

	t.Setenv("CHAT_AUTH_SESSION_SECRET", "from-env")
	t.Setenv("CHAT_AUTH_PROVIDER_SECRET", "idp")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9000", cfg.App.Port)
	require.Equal(t, "from-env", cfg.Auth.SessionSecret)
	require.Equal(t, "media", cfg.Storage.Bucket)
	require.NoError(t, cfg.ValidateServer())
}

func TestValidateServerRejectsMissingSecrets(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Error(t, cfg.ValidateServer())

	cfg.Auth.SessionSecret = "s"
	cfg.Auth.ProviderSecret = "p"
	cfg.Storage.Driver = "ftp"
	require.Error(t, cfg.ValidateServer())
}
