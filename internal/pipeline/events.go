// Package pipeline implements the Persistence Pipeline: the single actor
// that owns the Postgres connection pool and serializes every session
// event into an ordered, referentially-consistent stream of mutations.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sink is the subset of *Pipeline every producer package depends on. Session,
// shell, sftpd, and intel all take a Sink rather than a concrete *Pipeline so
// tests can substitute a fake actor without a real database connection.
type Sink interface {
	SendAuth(ctx context.Context, ev AuthEvent) (uuid.UUID, error)
	SendUploadedFile(ctx context.Context, ev UploadedFileEvent) (uuid.UUID, error)
	SendCommand(ev CommandEvent)
	SendSession(ev SessionEvent)
	SendConnTrack(ev ConnTrackEvent)
	SendCacheFill(ev CacheFillEvent)
	LookupCache(ctx context.Context, source CacheSource, ip string, ttlHours int) (*CacheLookupResult, error)
}

// AuthType enumerates the SSH authentication methods an Auth row records.
type AuthType string

const (
	AuthPassword             AuthType = "password"
	AuthPublicKey            AuthType = "publickey"
	AuthNone                 AuthType = "none"
	AuthKeyboardInteractive  AuthType = "keyboard-interactive"
)

// AuthEvent materializes one authentication decision, accept or reject.
type AuthEvent struct {
	Timestamp      time.Time
	IP             string
	Username       string
	Type           AuthType
	Password       *string
	PublicKey      []byte
	Successful     bool
	AbuseIPDBData  []byte // raw JSON snapshot, nil if unavailable
	IPAPIData      []byte // raw JSON snapshot, nil if unavailable
}

// CommandEvent materializes one non-empty line dispatched by the shell
// interpreter, or the payload of a single exec request.
type CommandEvent struct {
	AuthID    uuid.UUID
	Timestamp time.Time
	Command   string
}

// SessionEvent materializes the lifetime of one accepted connection.
type SessionEvent struct {
	AuthID uuid.UUID
	Start  time.Time
	End    time.Time
}

// Duration returns the floor'd whole-second session duration per spec.
func (s SessionEvent) Duration() int64 {
	return int64(s.End.Sub(s.Start).Seconds())
}

// UploadedFileEvent materializes one completed file upload (SFTP CLOSE or
// SCP sink completion) that received at least one byte.
type UploadedFileEvent struct {
	AuthID         uuid.UUID
	Timestamp      time.Time
	Filename       string
	Filepath       string
	FileSize       int64
	FileHash       string
	ClaimedMIME    string
	DetectedMIME   string
	FormatMismatch bool
	Entropy        float64
	Data           []byte
	Truncated      bool
}

// ConnTrackEvent materializes an accepted TCP connection, before the SSH
// handshake completes.
type ConnTrackEvent struct {
	Timestamp time.Time
	IP        string
}

// CacheSource distinguishes the two independent IP intelligence pipelines.
type CacheSource int

const (
	CacheAbuseIPDB CacheSource = iota
	CacheIPAPI
)

// CacheFillEvent records a fresh upstream lookup result into the
// persistent cache table for the given source.
type CacheFillEvent struct {
	Source    CacheSource
	IP        string
	Timestamp time.Time
	Raw       []byte // the full upstream JSON response

	// AbuseIPDB fields
	AbuseConfidenceScore *int
	CountryCode          *string
	IsTor                bool
	IsWhitelisted        *bool
	TotalReports         int

	// IPAPI fields
	Country     *string
	RegionCode  *string
	RegionName  *string
	City        *string
	Zip         *string
	Lat         *float64
	Lon         *float64
	Timezone    *string
	ISP         *string
	Org         *string
	ASInfo      *string
}

// cacheLookupRequest is a read-only query routed through the actor so the
// pool's single-owner invariant holds even for IIC's table-tier reads.
type cacheLookupRequest struct {
	Source   CacheSource
	IP       string
	TTLHours int
}

// cacheLookupOutcome is delivered back over a dedicated reply channel.
type cacheLookupOutcome struct {
	result *CacheLookupResult
	err    error
}

// message is the internal mailbox envelope. Exactly one of the payload
// fields (or shutdown) is set; which one is set says what kind of message
// it is. Events that need an assigned id
// back (Auth, UploadedFile) carry a non-nil reply channel.
type message struct {
	auth         *AuthEvent
	command      *CommandEvent
	session      *SessionEvent
	uploadedFile *UploadedFileEvent
	connTrack    *ConnTrackEvent
	cacheFill    *CacheFillEvent
	cacheLookup  *cacheLookupRequest
	shutdown     bool

	reply      chan uuid.UUID
	cacheReply chan cacheLookupOutcome
}
