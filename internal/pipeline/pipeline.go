package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pipeline is the single long-lived actor described in spec.md §4.4. All
// producers talk to it through the Send* methods; only the goroutine
// started by Run ever touches the pool.
type Pipeline struct {
	mailbox         chan message
	closed          chan struct{}
	store           *store
	log             zerolog.Logger
	cleanupInterval time.Duration
	backoff         *backoff
}

// New constructs a Pipeline bound to pool. The mailbox is a large buffered
// channel standing in for the "unbounded queue" spec.md describes — Go has
// no literally unbounded channel, so backpressure appears only once this
// buffer (generous relative to any single honeypot's realistic connection
// count) is exhausted. Past that, detached producers block on the mailbox
// rather than drop — spec §4.4 refuses to drop events, and a blocked
// producer is exactly the tarpit effect a stalled database should have.
func New(pool *pgxpool.Pool, log zerolog.Logger, cleanupInterval time.Duration) *Pipeline {
	return &Pipeline{
		mailbox:         make(chan message, 8192),
		closed:          make(chan struct{}),
		store:           &store{pool: pool},
		log:             log,
		cleanupInterval: cleanupInterval,
		backoff:         newBackoff(),
	}
}

// Run is the actor loop. It must be started exactly once, in its own
// goroutine, before any producer calls a Send method. closed is closed
// when Run returns, unblocking any producer stuck sending to the mailbox
// rather than leaking it past process shutdown.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.closed)
	ticker := time.NewTicker(p.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.mailbox:
			if msg.shutdown {
				p.log.Info().Msg("pipeline received shutdown event, draining remaining mailbox")
				p.drain(ctx)
				return
			}
			p.handle(ctx, msg)
		case <-ticker.C:
			p.runCleanup(ctx)
		}
	}
}

// drain processes whatever is already queued without accepting new work,
// giving acknowledged-but-unprocessed events a chance to persist before
// the process exits.
func (p *Pipeline) drain(ctx context.Context) {
	for {
		select {
		case msg := <-p.mailbox:
			p.handle(ctx, msg)
		default:
			return
		}
	}
}

func (p *Pipeline) runCleanup(ctx context.Context) {
	n, err := p.store.cleanupExpired(ctx, 24)
	if err != nil {
		p.log.Error().Err(err).Msg("cache cleanup failed")
		return
	}
	if n > 0 {
		p.log.Info().Int64("rows", n).Msg("expired cache rows cleaned up")
	}
}

// handle dispatches one message to the right store method, retrying with
// capped exponential backoff on transient failure. It never drops an
// event: a stuck database stalls this loop, which in turn stalls any
// producer awaiting a reply — the tarpit effect spec.md calls for. The
// backoff state is shared across messages rather than reset per call, so a
// sustained outage keeps backing off instead of hammering the database at
// 100ms on every new event; a successful call resets it for the next one.
func (p *Pipeline) handle(ctx context.Context, msg message) {
	for {
		err := p.tryHandle(ctx, &msg)
		if err == nil {
			p.backoff.reset()
			return
		}
		if ctx.Err() != nil {
			return
		}
		p.log.Error().Err(err).Msg("persistence operation failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.backoff.next()):
		}
	}
}

func (p *Pipeline) tryHandle(ctx context.Context, msg *message) error {
	switch {
	case msg.auth != nil:
		id, err := p.store.insertAuth(ctx, msg.auth)
		if err != nil {
			return err
		}
		if msg.reply != nil {
			msg.reply <- id
		}
		return nil
	case msg.command != nil:
		return p.store.insertCommand(ctx, msg.command)
	case msg.session != nil:
		return p.store.insertSession(ctx, msg.session)
	case msg.uploadedFile != nil:
		id, err := p.store.insertUploadedFile(ctx, msg.uploadedFile)
		if err != nil {
			return err
		}
		if msg.reply != nil {
			msg.reply <- id
		}
		return nil
	case msg.connTrack != nil:
		return p.store.insertConnTrack(ctx, msg.connTrack)
	case msg.cacheFill != nil:
		return p.store.fillCache(ctx, msg.cacheFill)
	case msg.cacheLookup != nil:
		result, err := p.store.lookupCache(ctx, msg.cacheLookup.Source, msg.cacheLookup.IP, msg.cacheLookup.TTLHours)
		if msg.cacheReply != nil {
			msg.cacheReply <- cacheLookupOutcome{result: result, err: err}
		}
		// Cache lookup errors are not retried — a table read failing is
		// degraded service, not lost state, so the caller falls back to
		// an HTTP lookup instead of stalling the pipeline.
		return nil
	}
	return nil
}

// SendAuth emits an Auth event and blocks until PP has assigned and
// persisted its id.
func (p *Pipeline) SendAuth(ctx context.Context, ev AuthEvent) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	select {
	case p.mailbox <- message{auth: &ev, reply: reply}:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// SendUploadedFile emits an UploadedFile event and blocks for its id.
func (p *Pipeline) SendUploadedFile(ctx context.Context, ev UploadedFileEvent) (uuid.UUID, error) {
	reply := make(chan uuid.UUID, 1)
	select {
	case p.mailbox <- message{uploadedFile: &ev, reply: reply}:
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// SendCommand emits a Command event detached (fire-and-forget). It blocks
// the caller until the mailbox has room rather than drop the event; a
// stalled database naturally tarpits the producing session.
func (p *Pipeline) SendCommand(ev CommandEvent) {
	select {
	case p.mailbox <- message{command: &ev}:
	case <-p.closed:
		p.log.Warn().Msg("pipeline stopped, dropping command event")
	}
}

// SendSession emits a Session event detached.
func (p *Pipeline) SendSession(ev SessionEvent) {
	select {
	case p.mailbox <- message{session: &ev}:
	case <-p.closed:
		p.log.Warn().Msg("pipeline stopped, dropping session event")
	}
}

// SendConnTrack emits a ConnTrack event detached.
func (p *Pipeline) SendConnTrack(ev ConnTrackEvent) {
	select {
	case p.mailbox <- message{connTrack: &ev}:
	case <-p.closed:
		p.log.Warn().Msg("pipeline stopped, dropping conn_track event")
	}
}

// SendCacheFill emits a CacheFill event detached.
func (p *Pipeline) SendCacheFill(ev CacheFillEvent) {
	select {
	case p.mailbox <- message{cacheFill: &ev}:
	case <-p.closed:
		p.log.Warn().Msg("pipeline stopped, dropping cache fill event")
	}
}

// LookupCache performs the table-tier cache read on PP's behalf, since PP
// is the sole owner of the database connection pool.
func (p *Pipeline) LookupCache(ctx context.Context, source CacheSource, ip string, ttlHours int) (*CacheLookupResult, error) {
	reply := make(chan cacheLookupOutcome, 1)
	req := cacheLookupRequest{Source: source, IP: ip, TTLHours: ttlHours}
	select {
	case p.mailbox <- message{cacheLookup: &req, cacheReply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case out := <-reply:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown enqueues the terminal Shutdown event. Run drains remaining
// queued work and returns after processing it.
func (p *Pipeline) Shutdown() {
	p.mailbox <- message{shutdown: true}
}
