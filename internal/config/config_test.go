package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd)
	return cmd
}

func TestResolveDefaults(t *testing.T) {
	cmd := newTestCmd()
	p, err := Resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.0.0.0:2222", "[::]:2222"}, p.Interfaces)
	assert.True(t, p.Tarpit)
	assert.True(t, p.EnableSFTP)
	assert.False(t, p.RejectAllAuth)
	assert.Equal(t, "ubuntu", p.Hostname)
	assert.Equal(t, time.Hour, p.ProfileRotationInterval)
}

func TestResolveProfileRotationIntervalFromEnv(t *testing.T) {
	t.Setenv("HONEYPOT_PROFILE_ROTATION_INTERVAL", "0s")
	cmd := newTestCmd()
	p, err := Resolve(cmd)
	require.NoError(t, err)
	assert.Zero(t, p.ProfileRotationInterval)
}

func TestResolveFlagWinsOverEnv(t *testing.T) {
	t.Setenv("HONEYPOT_HOSTNAME", "from-env")
	cmd := newTestCmd()
	require.NoError(t, cmd.Flags().Set("hostname", "from-flag"))
	p, err := Resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-flag", p.Hostname)
}

func TestResolveEnvWinsOverDefault(t *testing.T) {
	t.Setenv("HONEYPOT_REJECT_ALL_AUTH", "true")
	cmd := newTestCmd()
	p, err := Resolve(cmd)
	require.NoError(t, err)
	assert.True(t, p.RejectAllAuth)
}

func TestResolveFileWinsOverDefault(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "honeypot-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("hostname: from-file\ntarpit: false\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cmd := newTestCmd()
	require.NoError(t, cmd.Flags().Set("config", f.Name()))
	p, err := Resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-file", p.Hostname)
	assert.False(t, p.Tarpit)
}

func TestResolveEnvWinsOverFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "honeypot-*.yaml")
	require.NoError(t, err)
	_, err = f.WriteString("hostname: from-file\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	t.Setenv("HONEYPOT_HOSTNAME", "from-env")
	cmd := newTestCmd()
	require.NoError(t, cmd.Flags().Set("config", f.Name()))
	p, err := Resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.Hostname)
}

func TestResolveRejectsEmptyDatabaseURL(t *testing.T) {
	cmd := newTestCmd()
	require.NoError(t, cmd.Flags().Set("database-url", ""))
	_, err := Resolve(cmd)
	assert.Error(t, err)
}
