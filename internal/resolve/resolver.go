package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/kelwitness/internal/directory"
	"github.com/roach88/kelwitness/internal/kel"
	"github.com/roach88/kelwitness/internal/registry"
	"github.com/roach88/kelwitness/internal/store"
)

// DefaultTimeout bounds directory lookups, remote fetches and
// announcements.
const DefaultTimeout = 5 * time.Second

var (
	// ErrNotFound means neither this witness nor any located peer could
	// answer.
	ErrNotFound = errors.New("not found")

	// ErrMalformed wraps input rejected before any processing.
	ErrMalformed = errors.New("malformed input")

	// ErrDisabled is returned by operations switched off by policy.
	ErrDisabled = errors.New("disabled")
)

// EventLog is the local event store.
type EventLog interface {
	Append(ctx context.Context, id kel.Identifier, ev kel.SignedEvent) (store.AppendResult, error)
	KeyState(ctx context.Context, id kel.Identifier) (kel.KeyState, bool, error)
	KeyLog(ctx context.Context, id kel.Identifier) ([]kel.SignedEvent, bool, error)
	Identifiers(ctx context.Context) ([]kel.Identifier, error)
	PutUnverifiedState(ctx context.Context, st kel.KeyState) (bool, error)
	UnverifiedState(ctx context.Context, id kel.Identifier) (kel.KeyState, bool, error)
}

// AddressBook is the local witness address registry.
type AddressBook interface {
	Put(ctx context.Context, wid string, rec registry.Record) (bool, error)
	Get(ctx context.Context, wid string) (registry.Record, bool, error)
	IDs(ctx context.Context) ([]string, error)
}

// Fetcher reads from another witness.
type Fetcher interface {
	KeyState(ctx context.Context, addr string, id kel.Identifier) (kel.KeyState, error)
	KeyLog(ctx context.Context, addr string, id kel.Identifier) ([]kel.SignedEvent, error)
	WitnessAddress(ctx context.Context, addr, wid string) (registry.Record, error)
}

// Outcome tells a writer whether a record existed before its write.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

func outcome(existed bool) Outcome {
	if existed {
		return Updated
	}
	return Created
}

// Resolver is safe for concurrent use. It holds no locks of its own; all
// serialization happens inside the event store.
type Resolver struct {
	log   EventLog
	book  AddressBook
	dir   *directory.Client
	fetch Fetcher
	self  string

	proc    *kel.Processor
	timeout time.Duration
	logger  *slog.Logger

	cacheRemote      bool
	acceptUnverified bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each lookup's directory and remote phase, and each
// announcement.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCacheRemote makes remote key state and log lookups fetch the full
// log, verify it and append it locally.
func WithCacheRemote(on bool) Option {
	return func(r *Resolver) {
		r.cacheRemote = on
	}
}

// WithAcceptUnverifiedStates enables storing key states that arrive
// without a log.
func WithAcceptUnverifiedStates(on bool) Option {
	return func(r *Resolver) {
		r.acceptUnverified = on
	}
}

// WithProcessor sets the processor used to replay remote logs.
func WithProcessor(p *kel.Processor) Option {
	return func(r *Resolver) {
		if p != nil {
			r.proc = p
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a resolver announcing self (host:port of this witness's API)
// for everything it stores.
func New(log EventLog, book AddressBook, dir *directory.Client, fetch Fetcher, self string, opts ...Option) *Resolver {
	r := &Resolver{
		log:     log,
		book:    book,
		dir:     dir,
		fetch:   fetch,
		self:    self,
		proc:    kel.NewProcessor(),
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AcceptsUnverifiedStates reports whether PutUnverifiedKeyState is enabled.
func (r *Resolver) AcceptsUnverifiedStates() bool { return r.acceptUnverified }

func parseID(s string) (kel.Identifier, error) {
	id, err := kel.ParseIdentifier(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return id, nil
}

// locate returns the address announced for key. Directory failures and
// our own address count as a miss.
func (r *Resolver) locate(ctx context.Context, key string) (string, bool) {
	addr, ok, err := r.dir.Locate(ctx, key)
	if err != nil {
		r.logger.Warn("directory lookup failed", "key", key, "error", err)
		return "", false
	}
	if !ok {
		r.logger.Debug("directory miss", "key", key)
		return "", false
	}
	if addr == r.self {
		r.logger.Debug("directory points at this witness", "key", key)
		return "", false
	}
	return addr, true
}

// announce publishes this witness as the holder of key. It runs after the
// local write is durable, detached from the caller's cancellation.
func (r *Resolver) announce(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.dir.Announce(ctx, key, r.self); err != nil {
		r.logger.Warn("announce failed", "key", key, "address", r.self, "error", err)
		return
	}
	r.logger.Debug("announced", "key", key, "address", r.self)
}

// Republish announces every identifier and witness id held locally. The
// peer directory keeps values in memory only, so a restarted witness must
// repopulate it.
func (r *Resolver) Republish(ctx context.Context) (int, error) {
	ids, err := r.log.Identifiers(ctx)
	if err != nil {
		return 0, fmt.Errorf("republish: %w", err)
	}
	wids, err := r.book.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("republish: %w", err)
	}

	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		r.announce(ctx, string(id))
		n++
	}
	for _, wid := range wids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		r.announce(ctx, wid)
		n++
	}
	r.logger.Info("republished local records", "count", n)
	return n, nil
}
