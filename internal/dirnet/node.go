// Package dirnet is a small peer-to-peer directory: every node keeps the
// values it was told about and asks its peers for the rest.
//
// Nodes talk gRPC with CBOR-encoded messages. There is no routing table;
// a node knows the peers it was introduced to and the peers that contacted
// it, and lookups fan out to them for a bounded number of rounds. Values
// live in memory only, so witnesses re-announce what they hold on start.
package dirnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/roach88/kelwitness/internal/directory"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 3 * time.Second

// maxRounds bounds how far a lookup spreads past the directly known peers.
const maxRounds = 3

// Node is a directory peer. It implements directory.Directory.
type Node struct {
	self    string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	values map[directory.Key]string
	peers  map[string]*grpc.ClientConn

	server *grpc.Server
}

var _ directory.Directory = (*Node)(nil)

// Option configures a Node.
type Option func(*Node)

// WithTimeout bounds each outbound call.
func WithTimeout(d time.Duration) Option {
	return func(n *Node) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithLogger sets the node's logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// New returns a node that advertises self (host:port) to its peers.
func New(self string, opts ...Option) *Node {
	n := &Node{
		self:    self,
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		values:  make(map[directory.Key]string),
		peers:   make(map[string]*grpc.ClientConn),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.server = grpc.NewServer(grpc.ForceServerCodec(cborCodec{}))
	n.server.RegisterService(&serviceDesc, &nodeServer{n: n})
	return n
}

// Addr returns the address the node advertises.
func (n *Node) Addr() string { return n.self }

// Serve accepts peer connections on lis until Stop is called.
func (n *Node) Serve(lis net.Listener) error {
	n.logger.Info("directory node listening", "address", lis.Addr().String(), "advertised", n.self)
	if err := n.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("directory serve: %w", err)
	}
	return nil
}

// Stop drains in-flight RPCs and closes every peer connection.
func (n *Node) Stop() {
	n.server.GracefulStop()

	n.mu.Lock()
	defer n.mu.Unlock()
	for addr, conn := range n.peers {
		conn.Close()
		delete(n.peers, addr)
	}
}

// Peers returns the known peer addresses in sorted order.
func (n *Node) Peers() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.peers))
	for addr := range n.peers {
		out = append(out, addr)
	}
	slices.Sort(out)
	return out
}

// addPeer remembers addr and opens a lazy connection to it.
func (n *Node) addPeer(addr string) (*grpc.ClientConn, error) {
	if addr == "" || addr == n.self {
		return nil, nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if conn, ok := n.peers[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(cborCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	n.peers[addr] = conn
	n.logger.Debug("directory peer added", "peer", addr)
	return conn, nil
}

func (n *Node) learn(addrs []string) {
	for _, addr := range addrs {
		if _, err := n.addPeer(addr); err != nil {
			n.logger.Warn("ignoring peer", "peer", addr, "error", err)
		}
	}
}

func (n *Node) conns() map[string]*grpc.ClientConn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]*grpc.ClientConn, len(n.peers))
	for addr, conn := range n.peers {
		out[addr] = conn
	}
	return out
}

// Join introduces the node to bootstrap and to every peer bootstrap knows.
func (n *Node) Join(ctx context.Context, bootstrap string) error {
	conn, err := n.addPeer(bootstrap)
	if err != nil {
		return fmt.Errorf("join %s: %w", bootstrap, err)
	}
	if conn == nil {
		return fmt.Errorf("join %s: cannot bootstrap from self", bootstrap)
	}

	resp, err := n.ping(ctx, conn)
	if err != nil {
		return fmt.Errorf("join %s: %w", bootstrap, err)
	}
	n.learn(resp.Peers)

	for addr, c := range n.conns() {
		if addr == bootstrap {
			continue
		}
		if _, err := n.ping(ctx, c); err != nil {
			n.logger.Warn("peer unreachable during join", "peer", addr, "error", err)
		}
	}
	n.logger.Info("joined directory", "bootstrap", bootstrap, "peers", len(n.Peers()))
	return nil
}

func (n *Node) ping(ctx context.Context, conn *grpc.ClientConn) (*PingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	out := new(PingResponse)
	if err := conn.Invoke(ctx, methodPing, &PingRequest{From: n.self}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Put stores value locally, then replicates it to every known peer.
// Replication is best effort: failures are logged, never returned.
func (n *Node) Put(ctx context.Context, key directory.Key, value string) error {
	n.mu.Lock()
	n.values[key] = value
	n.mu.Unlock()

	req := &StoreRequest{From: n.self, Key: key[:], Value: value}
	var wg sync.WaitGroup
	for addr, conn := range n.conns() {
		wg.Add(1)
		go func(addr string, conn *grpc.ClientConn) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()
			if err := conn.Invoke(cctx, methodStore, req, new(StoreResponse)); err != nil {
				n.logger.Warn("replicate to peer failed", "peer", addr, "key", key, "error", err)
			}
		}(addr, conn)
	}
	wg.Wait()
	return ctx.Err()
}

// Get returns the local value for key, or asks peers for it. The first
// peer holding the key wins and its value is cached locally.
func (n *Node) Get(ctx context.Context, key directory.Key) (string, bool, error) {
	n.mu.RLock()
	v, ok := n.values[key]
	n.mu.RUnlock()
	if ok {
		return v, true, nil
	}

	asked := map[string]bool{n.self: true}
	var errs []error
	answered := false
	for round := 0; round < maxRounds; round++ {
		pending := map[string]*grpc.ClientConn{}
		for addr, conn := range n.conns() {
			if !asked[addr] {
				pending[addr] = conn
				asked[addr] = true
			}
		}
		if len(pending) == 0 {
			break
		}

		value, found, ok, roundErrs := n.findValue(ctx, key, pending)
		errs = append(errs, roundErrs...)
		answered = answered || ok
		if found {
			n.mu.Lock()
			n.values[key] = value
			n.mu.Unlock()
			return value, true, nil
		}
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
	}

	if !answered && len(errs) > 0 {
		return "", false, fmt.Errorf("find value: %w", errors.Join(errs...))
	}
	return "", false, nil
}

// findValue queries peers concurrently and returns as soon as one holds
// the key. ok reports whether any peer answered at all.
func (n *Node) findValue(ctx context.Context, key directory.Key, peers map[string]*grpc.ClientConn) (value string, found, ok bool, errs []error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	type result struct {
		addr string
		resp *FindValueResponse
		err  error
	}
	results := make(chan result, len(peers))
	req := &FindValueRequest{From: n.self, Key: key[:]}
	for addr, conn := range peers {
		go func(addr string, conn *grpc.ClientConn) {
			resp := new(FindValueResponse)
			err := conn.Invoke(ctx, methodFindValue, req, resp)
			results <- result{addr: addr, resp: resp, err: err}
		}(addr, conn)
	}

	for range peers {
		r := <-results
		if r.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.addr, r.err))
			continue
		}
		ok = true
		n.learn(r.resp.Peers)
		if r.resp.Found {
			return r.resp.Value, true, true, errs
		}
	}
	return "", false, ok, errs
}

// nodeServer answers peer RPCs on behalf of a Node.
type nodeServer struct {
	n *Node
}

func (s *nodeServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	s.n.learn([]string{req.From})
	return &PingResponse{Peers: s.n.Peers()}, nil
}

func (s *nodeServer) Store(ctx context.Context, req *StoreRequest) (*StoreResponse, error) {
	key, err := keyFromBytes(req.Key)
	if err != nil {
		return nil, err
	}
	s.n.learn([]string{req.From})
	s.n.mu.Lock()
	s.n.values[key] = req.Value
	s.n.mu.Unlock()
	return &StoreResponse{}, nil
}

func (s *nodeServer) FindValue(ctx context.Context, req *FindValueRequest) (*FindValueResponse, error) {
	key, err := keyFromBytes(req.Key)
	if err != nil {
		return nil, err
	}
	s.n.learn([]string{req.From})
	s.n.mu.RLock()
	v, ok := s.n.values[key]
	s.n.mu.RUnlock()
	return &FindValueResponse{Found: ok, Value: v, Peers: s.n.Peers()}, nil
}

func keyFromBytes(b []byte) (directory.Key, error) {
	var k directory.Key
	if len(b) != len(k) {
		return k, status.Errorf(codes.InvalidArgument, "directory key is %d bytes, want %d", len(b), len(k))
	}
	copy(k[:], b)
	return k, nil
}
