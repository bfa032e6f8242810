package shell

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/profile"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/sfs"
)

func newTestShell(t *testing.T) *Shell {
	fs, err := sfs.New()
	require.NoError(t, err)
	return &Shell{
		fs:       fs.NewOverlay(),
		username: "root",
		hostname: "ubuntu",
		cwd:      "/root",
		env:      map[string]string{"HOME": "/root", "USER": "root", "SHELL": "/bin/bash"},
		profile:  profile.Profile{Hostname: "ubuntu"},
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestShell(t)
	out, exit := s.dispatch("frobnicate")
	assert.False(t, exit)
	assert.Equal(t, "frobnicate: command not found", out)
}

func TestDispatchEchoNoExpansion(t *testing.T) {
	s := newTestShell(t)
	out, exit := s.dispatch("echo foo")
	assert.False(t, exit)
	assert.Equal(t, "foo", out)
}

func TestDispatchEchoPreservesQuotedArgument(t *testing.T) {
	s := newTestShell(t)
	out, _ := s.dispatch(`echo "hello world"`)
	assert.Equal(t, "hello world", out)
}

func TestDispatchEmptyLineIsNoOp(t *testing.T) {
	s := newTestShell(t)
	out, exit := s.dispatch("")
	assert.False(t, exit)
	assert.Equal(t, "", out)
}

func TestDispatchWhoamiReflectsUsername(t *testing.T) {
	s := newTestShell(t)
	out, _ := s.dispatch("whoami")
	assert.Equal(t, "root", out)
}

func TestDispatchPwdReflectsCwd(t *testing.T) {
	s := newTestShell(t)
	out, _ := s.dispatch("pwd")
	assert.Equal(t, "/root", out)
}

func TestDispatchCatKnownSyntheticFile(t *testing.T) {
	s := newTestShell(t)
	out, _ := s.dispatch("cat /etc/os-release")
	assert.True(t, strings.Contains(out, "Ubuntu"))
}

func TestKnownBinaryPathCoversDispatchTable(t *testing.T) {
	for cmd := range commandTable {
		_, ok := knownBinaryPath(cmd)
		assert.True(t, ok, "which should resolve %s", cmd)
	}
}
