package session

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/keys"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/profile"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/tarpit"
)

func encodedPayload(s string) []byte {
	buf := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

func TestReadExecPayload(t *testing.T) {
	assert.Equal(t, "whoami", readExecPayload(encodedPayload("whoami")))
	assert.Equal(t, "", readExecPayload(nil))
	assert.Equal(t, "", readExecPayload([]byte{0, 0}))
}

func TestReadExecPayloadRejectsOversizedLength(t *testing.T) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, 9999)
	assert.Equal(t, "", readExecPayload(buf))
}

type fakeAddr struct{ s string }

func (fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string { return a.s }

type fakeConn struct {
	net.Conn
	remote net.Addr
}

func (c fakeConn) RemoteAddr() net.Addr { return c.remote }

func TestRemoteIPStripsPort(t *testing.T) {
	ip := remoteIP(fakeConn{remote: fakeAddr{"203.0.113.42:51823"}})
	assert.Equal(t, "203.0.113.42", ip)
}

func TestRemoteIPFallsBackToRawAddr(t *testing.T) {
	ip := remoteIP(fakeConn{remote: fakeAddr{"not-a-host-port"}})
	assert.Equal(t, "not-a-host-port", ip)
}

// fakeSink is a pipeline.Sink recording every Auth event instead of
// persisting anything, so Controller.Accept can be driven end-to-end
// against a real ssh.Client without a database.
type fakeSink struct {
	mu    sync.Mutex
	auths []pipeline.AuthEvent
}

func (f *fakeSink) SendAuth(_ context.Context, ev pipeline.AuthEvent) (uuid.UUID, error) {
	f.mu.Lock()
	f.auths = append(f.auths, ev)
	f.mu.Unlock()
	return uuid.New(), nil
}

func (f *fakeSink) SendUploadedFile(_ context.Context, _ pipeline.UploadedFileEvent) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (f *fakeSink) SendCommand(pipeline.CommandEvent)     {}
func (f *fakeSink) SendSession(pipeline.SessionEvent)     {}
func (f *fakeSink) SendConnTrack(pipeline.ConnTrackEvent) {}
func (f *fakeSink) SendCacheFill(pipeline.CacheFillEvent) {}

func (f *fakeSink) LookupCache(context.Context, pipeline.CacheSource, string, int) (*pipeline.CacheLookupResult, error) {
	return nil, nil
}

func newTestController(t *testing.T, sink pipeline.Sink) *Controller {
	signer, err := keys.LoadOrGenerate(t.TempDir())
	require.NoError(t, err)
	return &Controller{
		Signer:   signer,
		Profiles: profile.NewRotator("test-host"),
		Pipeline: sink,
		Tarpit:   tarpit.New(false),
		Log:      zerolog.Nop(),
	}
}

// TestAcceptRecordsPasswordAuth drives a real ssh.Client handshake through
// Controller.Accept and asserts the captured Auth event carries the
// password the client sent — the scenario a NoClientAuth regression (the
// library accepting the "none" probe before the client ever offers a
// password) would silently break.
func TestAcceptRecordsPasswordAuth(t *testing.T) {
	sink := &fakeSink{}
	ctrl := newTestController(t, sink)

	serverConn, clientConn := net.Pipe()
	accepted := make(chan struct{})
	go func() {
		ctrl.Accept(serverConn)
		close(accepted)
	}()

	clientCfg := &ssh.ClientConfig{
		User:            "root",
		Auth:            []ssh.AuthMethod{ssh.Password("toor")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(clientConn, "pipe", clientCfg)
	require.NoError(t, err)
	client := ssh.NewClient(sshConn, chans, reqs)
	require.NoError(t, client.Close())

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("Controller.Accept did not return after the client closed")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.auths, 1)
	ev := sink.auths[0]
	assert.Equal(t, pipeline.AuthPassword, ev.Type)
	require.NotNil(t, ev.Password)
	assert.Equal(t, "toor", *ev.Password)
	assert.True(t, ev.Successful)
}
