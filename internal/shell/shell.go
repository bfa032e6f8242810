// Package shell implements the Shell Interpreter: the per-channel state
// machine that drives an interactive "shell" or pty session once the
// Session Controller has handed it a channel, an authenticated identity,
// and a private filesystem overlay.
package shell

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/crypto/ssh"

	"github.com/Lucy-dot-dot/ssh-honeypot/internal/pipeline"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/profile"
	"github.com/Lucy-dot-dot/ssh-honeypot/internal/tarpit"
)

// Shell is one interactive session bound to a single SSH channel. It is
// not safe for concurrent use from more than one goroutine — Serve owns it
// for the lifetime of the channel.
type Shell struct {
	ch       ssh.Channel
	fs       afero.Fs
	username string
	hostname string
	cwd      string
	env      map[string]string
	history  []string
	profile  profile.Profile
	pp       pipeline.Sink
	authID   uuid.UUID
	tp       *tarpit.Tarpit
	log      zerolog.Logger

	// lastStatus tracks the most recently dispatched command's exit
	// status ($?). Nothing reads it yet — the shell never expands
	// variables — but dispatch keeps it current so that wiring $?
	// expansion later is a read, not a new tracking mechanism.
	lastStatus int

	rawIn    chan byte
	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
}

// New builds a Shell bound to ch. overlay must come from sfs.FS.NewOverlay
// so mutating commands never touch the shared base tree.
func New(ch ssh.Channel, username string, overlay afero.Fs, prof profile.Profile, pp pipeline.Sink, authID uuid.UUID, tp *tarpit.Tarpit, log zerolog.Logger) *Shell {
	cwd := "/home/" + username
	if username == "root" {
		cwd = "/root"
	}
	s := &Shell{
		ch:       ch,
		fs:       overlay,
		username: username,
		hostname: prof.Hostname,
		cwd:      cwd,
		env:      map[string]string{"HOME": cwd, "USER": username, "SHELL": "/bin/bash", "PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"},
		profile:  prof,
		pp:       pp,
		authID:   authID,
		tp:       tp,
		log:      log,
		rawIn:    make(chan byte, 256),
		done:     make(chan struct{}),
	}
	go s.inputReader()
	return s
}

func (s *Shell) inputReader() {
	buf := make([]byte, 1)
	for {
		n, err := s.ch.Read(buf)
		if n > 0 {
			select {
			case s.rawIn <- buf[0]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.closeDone()
			return
		}
	}
}

func (s *Shell) readRaw() (byte, bool) {
	select {
	case b := <-s.rawIn:
		return b, true
	case <-s.done:
		return 0, false
	}
}

func (s *Shell) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done exposes the session's done channel so callers (the tarpit, the
// controller's idle timer) can select on channel death without reaching
// into Shell internals.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

func (s *Shell) write(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.ch.Write([]byte(data))
}

func (s *Shell) writef(format string, args ...interface{}) {
	s.write(fmt.Sprintf(format, args...))
}

func (s *Shell) prompt() string {
	return fmt.Sprintf("%s@%s:%s$ ", s.username, s.hostname, s.cwd)
}

// Serve runs the read-eval-print loop until the channel closes or the
// guest types exit. It blocks until the session ends.
func (s *Shell) Serve() {
	s.tp.Delay(s.done)
	s.write(motd(s.profile))
	s.tp.Delay(s.done)
	s.write(s.prompt())

	var buf []byte
	for {
		b, ok := s.readRaw()
		if !ok {
			return
		}
		switch {
		case b == '\r' || b == '\n':
			s.write("\r\n")
			line := string(buf)
			buf = buf[:0]
			s.handleLine(line)
			if !s.running() {
				return
			}
			s.tp.Delay(s.done)
			s.write(s.prompt())

		case b == 0x7f || b == 0x08: // backspace / DEL
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				s.write("\b \b")
			}

		case b == 0x03: // Ctrl-C: discard the line, reprint the prompt
			buf = buf[:0]
			s.write("^C\r\n" + s.prompt())

		case b == 0x04: // Ctrl-D on an empty line closes the channel
			if len(buf) == 0 {
				s.write("logout\r\n")
				s.closeDone()
				return
			}

		case b == 0x0c: // Ctrl-L clears the screen
			s.write("\x1b[2J\x1b[H" + s.prompt() + string(buf))

		case b >= 0x20:
			buf = append(buf, b)
			s.write(string([]byte{b}))
		}
	}
}

func (s *Shell) running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// handleLine emits the Command event for any non-empty, non-whitespace
// line, then dispatches it. Whitespace-only lines never reach the
// pipeline — matching the resolved Open Question that blank Enter presses
// don't produce rows.
func (s *Shell) handleLine(raw string) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return
	}
	s.history = append(s.history, line)
	s.pp.SendCommand(pipeline.CommandEvent{
		AuthID:    s.authID,
		Timestamp: time.Now(),
		Command:   line,
	})

	s.tp.Delay(s.done)
	// dispatch's exit flag is informational only — commands that end the
	// session (exit and logout, both via cmdExit) close s.done directly,
	// and Serve's running() check after handleLine picks that up.
	out, _ := s.dispatch(line)
	if out != "" {
		s.write(strings.ReplaceAll(out, "\n", "\r\n"))
		if !strings.HasSuffix(out, "\n") {
			s.write("\r\n")
		}
	}
}

// resolvePath turns a possibly-relative argument into an absolute,
// cleaned path against the shell's current working directory.
func (s *Shell) resolvePath(arg string) string {
	if arg == "" {
		return s.cwd
	}
	if arg == "~" {
		return s.env["HOME"]
	}
	if strings.HasPrefix(arg, "~/") {
		arg = s.env["HOME"] + "/" + arg[2:]
	}
	if !strings.HasPrefix(arg, "/") {
		arg = path.Join(s.cwd, arg)
	}
	return path.Clean(arg)
}

func motd(p profile.Profile) string {
	return fmt.Sprintf(
		"Welcome to Ubuntu 22.04.4 LTS (GNU/Linux %s x86_64)\r\n\r\n"+
			"  System load:  %s\r\n"+
			"  Usage of /:   %d%% of %dGB\r\n\r\n",
		p.KernelShort(), p.LoadStr, p.DiskUsed, p.DiskSize)
}
