// Package session implements the Session Controller: the per-TCP-
// connection coordinator that drives the SSH handshake and
// authentication, multiplexes channels to the Shell Interpreter or the
// SFTP Subsystem, and emits ConnTrack/Auth/Session events to the
// persistence pipeline.
package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/intel"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/profile"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/sfs"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/sftpd"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/shell"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/tarpit"
)

const (
	handshakeTimeout = 30 * time.Second
	idleTimeout      = 10 * time.Minute
	maxAuthTries     = 6
	iicSoftDeadline  = 2 * time.Second
)

// Controller holds everything shared across every accepted connection. It
// has no per-connection mutable state — Accept builds a fresh conn value
// for that.
type Controller struct {
	Signer      ssh.Signer
	FS          *sfs.FS
	Profiles    *profile.Rotator
	Pipeline    pipeline.Sink
	Abuse       *intel.AbuseIPDBClient
	IPAPI       *intel.IPAPIClient
	Tarpit      *tarpit.Tarpit
	RejectAll   bool
	SFTPEnabled bool
	DisableCLI  bool
	Banner      string
	Log         zerolog.Logger
}

// Accept drives one TCP connection end-to-end. It never panics or leaks
// the connection back to the caller's error handling: every failure is
// either a logged diagnostic or a negative Auth row.
func (c *Controller) Accept(netConn net.Conn) {
	defer netConn.Close()
	defer func() {
		if r := recover(); r != nil {
			c.Log.Error().Interface("panic", r).Msg("recovered from panic in connection handler")
		}
	}()

	ip := remoteIP(netConn)
	c.Pipeline.SendConnTrack(pipeline.ConnTrackEvent{Timestamp: time.Now(), IP: ip})

	abuseCh := make(chan intel.AbuseIPDBResult, 1)
	ipapiCh := make(chan intel.IPAPIResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), iicSoftDeadline)
		defer cancel()
		abuseCh <- c.Abuse.Lookup(ctx, ip)
	}()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), iicSoftDeadline)
		defer cancel()
		ipapiCh <- c.IPAPI.Lookup(ctx, ip)
	}()

	cn := &conn{
		ctrl:    c,
		ip:      ip,
		profile: c.Profiles.Current(),
		abuseCh: abuseCh,
		ipapiCh: ipapiCh,
		done:    make(chan struct{}),
	}

	_ = netConn.SetDeadline(time.Now().Add(handshakeTimeout))
	println("DEBUG: before NewServerConn")
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, cn.sshConfig())
	println("DEBUG: after NewServerConn", err != nil)
	if err != nil {
		c.Log.Debug().Str("ip", ip).Err(err).Msg("handshake or auth failed")
		return
	}
	defer sshConn.Close()
	_ = netConn.SetDeadline(time.Time{})

	if cn.authID == uuid.Nil {
		// Policy rejected every attempt, or the peer gave up before
		// succeeding: no Session row, nothing further to drive.
		return
	}

	go ssh.DiscardRequests(reqs)
	start := time.Now()
	cn.resetIdle(netConn)

	var wg sync.WaitGroup
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cn.handleSessionChannel(ch, chReqs)
		}()
	}
	wg.Wait()
	close(cn.done)

	c.Pipeline.SendSession(pipeline.SessionEvent{
		AuthID: cn.authID,
		Start:  start,
		End:    time.Now(),
	})
}

// conn is the per-connection mutable state Controller.Accept builds fresh
// for every call.
type conn struct {
	ctrl    *Controller
	ip      string
	profile profile.Profile
	abuseCh chan intel.AbuseIPDBResult
	ipapiCh chan intel.IPAPIResult

	mu       sync.Mutex
	authID   uuid.UUID
	username string

	abuseSnapshot snapshotCache
	ipapiSnapshot snapshotCache

	done chan struct{}
}

func remoteIP(netConn net.Conn) string {
	addr := netConn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// resetIdle arms a background timer that force-closes the connection
// idleTimeout after it is called (right after authentication) unless the
// connection has ended first, i.e. cn.done closed once every channel has
// finished and the peer has gone. The timer is armed once and is not reset
// by channel activity (shell reads, SFTP requests), so a connection that is
// still active when it fires is closed as well.
func (cn *conn) resetIdle(netConn net.Conn) {
	go func() {
		timer := time.NewTimer(idleTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			_ = netConn.Close()
		case <-cn.done:
		}
	}()
}

func (cn *conn) sshConfig() *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{
		ServerVersion: cn.profile.SSHVersion,
		MaxAuthTries:  maxAuthTries,
		BannerCallback: func(ssh.ConnMetadata) string {
			cn.ctrl.Tarpit.Delay(cn.done)
			return cn.ctrl.Banner
		},
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			println("DEBUG: PasswordCallback called")
			pw := string(password)
			res, err := cn.authenticate(meta, pipeline.AuthPassword, &pw, nil)
			println("DEBUG: authenticate returned", err != nil)
			return res, err
		},
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return cn.authenticate(meta, pipeline.AuthPublicKey, nil, key.Marshal())
		},
		KeyboardInteractiveCallback: func(meta ssh.ConnMetadata, _ ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			return cn.authenticate(meta, pipeline.AuthKeyboardInteractive, nil, nil)
		},
		// No NoClientAuth / NoClientAuthCallback: every real client (the Go
		// ssh client and OpenSSH both) probes with a "none" method first,
		// and accepting that probe would end the handshake before the
		// client ever sends the password/key this honeypot exists to
		// capture. Leaving both unset makes the library reject "none"
		// itself, same as the teacher, which drives the client on to
		// PasswordCallback/PublicKeyCallback.
	}
	cfg.AddHostKey(cn.ctrl.Signer)
	return cfg
}

// authenticate is shared by every auth callback: emit the Auth event,
// block for its id, then accept or reject per policy. Every distinct
// userauth_request produces its own row, matching spec.md's "created on
// every authentication decision" invariant.
func (cn *conn) authenticate(meta ssh.ConnMetadata, kind pipeline.AuthType, password *string, pubKey []byte) (*ssh.Permissions, error) {
	cn.mu.Lock()
	cn.username = meta.User()
	cn.mu.Unlock()

	cn.ctrl.Tarpit.Delay(cn.done)

	successful := !cn.ctrl.RejectAll
	ev := pipeline.AuthEvent{
		Timestamp:     time.Now(),
		IP:            cn.ip,
		Username:      meta.User(),
		Type:          kind,
		Password:      password,
		PublicKey:     pubKey,
		Successful:    successful,
		AbuseIPDBData: trySnapshot(cn.abuseCh, &cn.abuseSnapshot),
		IPAPIData:     tryIPAPISnapshot(cn.ipapiCh, &cn.ipapiSnapshot),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := cn.ctrl.Pipeline.SendAuth(ctx, ev)
	if err != nil {
		return nil, err
	}

	if !successful {
		return nil, errAuthRejected
	}
	cn.mu.Lock()
	cn.authID = id
	cn.mu.Unlock()
	return &ssh.Permissions{}, nil
}

// abuseSnapshot/ipapiSnapshot memoize the first IIC result seen so later
// auth attempts on the same connection (e.g. a failed publickey followed
// by a password) reuse it instead of re-draining an already-empty
// channel.
type snapshotCache struct {
	data []byte
	have bool
}

var errAuthRejected = &authRejectedError{}

type authRejectedError struct{}

func (*authRejectedError) Error() string { return "authentication rejected by policy" }

func trySnapshot(ch chan intel.AbuseIPDBResult, cache *snapshotCache) []byte {
	if cache.have {
		return cache.data
	}
	select {
	case v := <-ch:
		if v.Unknown {
			cache.have = true
			return nil
		}
		b, _ := json.Marshal(v)
		cache.data = b
		cache.have = true
		return b
	default:
		return nil
	}
}

func tryIPAPISnapshot(ch chan intel.IPAPIResult, cache *snapshotCache) []byte {
	if cache.have {
		return cache.data
	}
	select {
	case v := <-ch:
		if v.Unknown {
			cache.have = true
			return nil
		}
		b, _ := json.Marshal(v)
		cache.data = b
		cache.have = true
		return b
	default:
		return nil
	}
}

func readExecPayload(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	n := binary.BigEndian.Uint32(payload[:4])
	if int(n) > len(payload)-4 {
		return ""
	}
	return string(payload[4 : 4+n])
}

// handleSessionChannel multiplexes one opened "session" channel to the
// shell interpreter, the SFTP subsystem, or a one-shot exec, per
// spec.md's channel multiplexing rules.
func (cn *conn) handleSessionChannel(ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	overlay := cn.ctrl.FS.NewOverlay()

	for req := range reqs {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			if cn.ctrl.DisableCLI {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			sh := shell.New(ch, cn.username, overlay, cn.profile, cn.ctrl.Pipeline, cn.authID, cn.ctrl.Tarpit, cn.ctrl.Log)
			sh.Serve()
			return
		case "exec":
			if cn.ctrl.DisableCLI {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			cn.handleExec(ch, overlay, readExecPayload(req.Payload))
			return
		case "subsystem":
			name := readExecPayload(req.Payload)
			if name == "sftp" && cn.ctrl.SFTPEnabled {
				_ = req.Reply(true, nil)
				cn.handleSFTP(ch, overlay)
				return
			}
			_ = req.Reply(false, nil)
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (cn *conn) handleExec(ch ssh.Channel, overlay afero.Fs, cmd string) {
	cn.ctrl.Pipeline.SendCommand(pipeline.CommandEvent{
		AuthID:    cn.authID,
		Timestamp: time.Now(),
		Command:   cmd,
	})

	if strings.HasPrefix(cmd, "scp -t") {
		dest := strings.TrimSpace(strings.TrimPrefix(cmd, "scp -t"))
		sftpd.HandleSCPUpload(ch, overlay, dest, cn.authID, cn.ctrl.Pipeline, cn.ctrl.Log)
		return
	}

	cn.ctrl.Tarpit.Delay(cn.done)
	_, _ = ch.SendRequest("exit-status", false, []byte{0, 0, 0, 0})
}

func (cn *conn) handleSFTP(ch ssh.Channel, overlay afero.Fs) {
	h := sftpd.Handlers{
		FS:     overlay,
		AuthID: cn.authID,
		PP:     cn.ctrl.Pipeline,
		Log:    cn.ctrl.Log,
	}
	srv := sftp.NewRequestServer(ch, h.AsHandlers())
	_ = srv.Serve()
	_ = srv.Close()
}
