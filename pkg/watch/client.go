// Package watch streams stamp account changes from an upstream node's
// geyser gRPC feed.
//
// The client subscribes with a server-side owner filter, so only
// accounts owned by the stamp program cross the wire. Message types are
// hand-written structs carrying protobuf tags; the stream is opened
// over a raw grpc.StreamDesc so no generated code is required. The
// client reconnects on connection loss with exponential backoff.
package watch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GotokHQ/stamp/internal/types"
)

// Client errors.
var (
	ErrNotConnected     = errors.New("watch client not connected")
	ErrAlreadyConnected = errors.New("watch client already connected")
	ErrClosed           = errors.New("watch client closed")
	ErrStreamClosed     = errors.New("watch stream closed")
	ErrMaxReconnects    = errors.New("max reconnection attempts reached")
)

// Client streams account updates for one program owner.
type Client struct {
	config Config

	// gRPC connection and stream
	conn   *grpc.ClientConn
	stream *watchStream

	// Output channels
	accounts chan *AccountUpdate
	slots    chan *SlotUpdate

	// State management
	mu             sync.RWMutex
	connected      atomic.Bool
	closed         atomic.Bool
	lastSlot       atomic.Uint64
	lastUpdate     atomic.Int64 // Unix nano timestamp
	reconnectCount atomic.Int32
	pingID         atomic.Int32
	cancelFunc     context.CancelFunc
	wg             sync.WaitGroup
	lastError      error
	lastErrorMu    sync.RWMutex

	// Context for the current connection
	ctx context.Context
}

// watchStream wraps a gRPC bidirectional stream for geyser subscriptions.
type watchStream struct {
	stream grpc.ClientStream
}

// Send sends a subscription request to the server.
func (s *watchStream) Send(req *subscribeRequest) error {
	return s.stream.SendMsg(req)
}

// Recv receives a subscription update from the server.
func (s *watchStream) Recv() (*subscribeUpdate, error) {
	update := &subscribeUpdate{}
	if err := s.stream.RecvMsg(update); err != nil {
		return nil, err
	}
	return update, nil
}

// CloseSend closes the send side of the stream.
func (s *watchStream) CloseSend() error {
	return s.stream.CloseSend()
}

// subscribeRequest mirrors the geyser SubscribeRequest message, limited
// to the fields this client uses. Field numbers follow the Yellowstone
// proto so the wire format matches without generated code.
type subscribeRequest struct {
	Accounts   map[string]*accountsFilter `protobuf:"bytes,1,rep,name=accounts"`
	Slots      map[string]*slotsFilter    `protobuf:"bytes,2,rep,name=slots"`
	Commitment *int32                     `protobuf:"varint,8,opt,name=commitment"`
	Ping       *pingRequest               `protobuf:"bytes,10,opt,name=ping"`
	FromSlot   *uint64                    `protobuf:"varint,11,opt,name=from_slot"`
}

func (x *subscribeRequest) Reset()         { *x = subscribeRequest{} }
func (x *subscribeRequest) String() string { return fmt.Sprintf("%+v", *x) }
func (x *subscribeRequest) ProtoMessage()  {}

type accountsFilter struct {
	Account []string `protobuf:"bytes,1,rep,name=account"`
	Owner   []string `protobuf:"bytes,2,rep,name=owner"`
}

type slotsFilter struct {
	FilterByCommitment *int32 `protobuf:"varint,1,opt,name=filter_by_commitment"`
}

type pingRequest struct {
	ID int32 `protobuf:"varint,1,opt,name=id"`
}

// subscribeUpdate mirrors the geyser SubscribeUpdate message, limited to
// account and slot updates plus keepalive traffic.
type subscribeUpdate struct {
	Filters []string       `protobuf:"bytes,1,rep,name=filters"`
	Account *accountUpdate `protobuf:"bytes,3,opt,name=account"`
	Slot    *slotUpdate    `protobuf:"bytes,4,opt,name=slot"`
	Ping    *pingUpdate    `protobuf:"bytes,9,opt,name=ping"`
	Pong    *pongUpdate    `protobuf:"bytes,11,opt,name=pong"`
}

func (x *subscribeUpdate) Reset()         { *x = subscribeUpdate{} }
func (x *subscribeUpdate) String() string { return fmt.Sprintf("%+v", *x) }
func (x *subscribeUpdate) ProtoMessage()  {}

type accountUpdate struct {
	Account *accountInfo `protobuf:"bytes,1,opt,name=account"`
	Slot    uint64       `protobuf:"varint,2,opt,name=slot"`
}

type accountInfo struct {
	Pubkey       []byte `protobuf:"bytes,1,opt,name=pubkey"`
	Lamports     uint64 `protobuf:"varint,2,opt,name=lamports"`
	Owner        []byte `protobuf:"bytes,3,opt,name=owner"`
	Executable   bool   `protobuf:"varint,4,opt,name=executable"`
	RentEpoch    uint64 `protobuf:"varint,5,opt,name=rent_epoch"`
	Data         []byte `protobuf:"bytes,6,opt,name=data"`
	WriteVersion uint64 `protobuf:"varint,7,opt,name=write_version"`
	TxnSignature []byte `protobuf:"bytes,8,opt,name=txn_signature"`
}

type slotUpdate struct {
	Slot   uint64  `protobuf:"varint,1,opt,name=slot"`
	Parent *uint64 `protobuf:"varint,2,opt,name=parent"`
	Status int32   `protobuf:"varint,3,opt,name=status"`
}

type pingUpdate struct{}

type pongUpdate struct {
	ID int32 `protobuf:"varint,1,opt,name=id"`
}

// NewClient creates a new watch client with the given configuration.
// The client is not connected until Connect() is called.
func NewClient(config Config) (*Client, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		config:   config,
		accounts: make(chan *AccountUpdate, config.AccountChannelSize),
		slots:    make(chan *SlotUpdate, config.SlotChannelSize),
	}, nil
}

// Connect establishes the gRPC connection and starts the subscription.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.ctx = ctx

	if err := c.connect(ctx); err != nil {
		cancel()
		return err
	}

	c.wg.Add(3)
	go c.receiveLoop()
	go c.pingLoop()
	go c.healthCheckLoop()

	c.connected.Store(true)
	c.lastUpdate.Store(time.Now().UnixNano())

	if c.config.OnConnect != nil {
		c.config.OnConnect()
	}

	return nil
}

// connect establishes the gRPC connection.
func (c *Client) connect(ctx context.Context) error {
	kacp := keepalive.ClientParameters{
		Time:                c.config.KeepaliveTime,
		Timeout:             c.config.KeepaliveTimeout,
		PermitWithoutStream: true,
	}

	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(c.config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.config.MaxMessageSize),
		),
	}

	if c.config.UseTLS {
		opts = append(opts, grpc.WithTransportCredentials(
			credentials.NewTLS(&tls.Config{
				MinVersion: tls.VersionTLS12,
			}),
		))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if c.config.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&tokenAuth{
			token:      c.config.Token,
			requireTLS: c.config.UseTLS,
		}))
	}

	//nolint:staticcheck // Using Dial for compatibility with older gRPC versions
	conn, err := grpc.Dial(c.config.Endpoint, opts...)
	if err != nil {
		return fmt.Errorf("failed to dial gRPC: %w", err)
	}
	c.conn = conn

	md := metadata.New(c.config.Headers)
	streamCtx := metadata.NewOutgoingContext(ctx, md)

	streamDesc := &grpc.StreamDesc{
		StreamName:    "Subscribe",
		ServerStreams: true,
		ClientStreams: true,
	}

	stream, err := conn.NewStream(streamCtx, streamDesc, "/geyser.Geyser/Subscribe")
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create stream: %w", err)
	}

	c.stream = &watchStream{stream: stream}

	if err := c.sendSubscribeRequest(); err != nil {
		stream.CloseSend()
		conn.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// sendSubscribeRequest sends the owner-filtered subscription.
func (c *Client) sendSubscribeRequest() error {
	commitment := int32(c.config.Commitment)

	req := &subscribeRequest{
		Commitment: &commitment,
		Accounts: map[string]*accountsFilter{
			"stamps": {
				Owner: []string{c.config.Owner},
			},
		},
		Slots: map[string]*slotsFilter{
			"slots": {},
		},
	}

	if c.config.FromSlot != nil {
		req.FromSlot = c.config.FromSlot
	}

	return c.stream.Send(req)
}

// receiveLoop continuously receives updates from the gRPC stream.
func (c *Client) receiveLoop() {
	defer c.wg.Done()
	defer c.handleDisconnect(nil)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		update, err := c.stream.Recv()
		if err != nil {
			if err == io.EOF {
				c.setLastError(ErrStreamClosed)
				c.handleDisconnect(ErrStreamClosed)
				return
			}
			if c.ctx.Err() != nil {
				// Context cancelled, normal shutdown
				return
			}
			c.setLastError(err)
			c.handleDisconnect(err)
			return
		}

		c.lastUpdate.Store(time.Now().UnixNano())
		c.processUpdate(update)
	}
}

// processUpdate processes a single update from the stream.
func (c *Client) processUpdate(update *subscribeUpdate) {
	if update == nil {
		return
	}

	if update.Account != nil {
		account := c.convertAccountUpdate(update.Account)
		if account != nil {
			c.lastSlot.Store(account.Slot)

			if c.config.OnAccount != nil {
				c.config.OnAccount(account)
			}

			// Send to channel, dropping the oldest update when full.
			select {
			case c.accounts <- account:
			default:
				select {
				case <-c.accounts:
				default:
				}
				c.accounts <- account
			}
		}
	}

	if update.Slot != nil {
		slot := c.convertSlotUpdate(update.Slot)
		c.lastSlot.Store(slot.Slot)

		if c.config.OnSlot != nil {
			c.config.OnSlot(slot)
		}

		select {
		case c.slots <- slot:
		default:
			select {
			case <-c.slots:
			default:
			}
			c.slots <- slot
		}
	}
}

// convertAccountUpdate converts a protobuf account update. Updates with
// malformed keys are dropped.
func (c *Client) convertAccountUpdate(pb *accountUpdate) *AccountUpdate {
	if pb.Account == nil {
		return nil
	}
	info := pb.Account

	pubkey, err := types.PubkeyFromBytes(info.Pubkey)
	if err != nil {
		return nil
	}
	owner, err := types.PubkeyFromBytes(info.Owner)
	if err != nil {
		return nil
	}

	update := &AccountUpdate{
		Pubkey:       pubkey,
		Lamports:     info.Lamports,
		Owner:        owner,
		Executable:   info.Executable,
		RentEpoch:    info.RentEpoch,
		Data:         info.Data,
		WriteVersion: info.WriteVersion,
		Slot:         pb.Slot,
		ReceivedAt:   time.Now(),
	}

	if len(info.TxnSignature) == types.SignatureSize {
		var sig types.Signature
		copy(sig[:], info.TxnSignature)
		update.TxnSignature = &sig
	}

	return update
}

// convertSlotUpdate converts a protobuf slot update.
func (c *Client) convertSlotUpdate(pb *slotUpdate) *SlotUpdate {
	update := &SlotUpdate{
		Slot:       pb.Slot,
		Status:     SlotStatus(pb.Status),
		ReceivedAt: time.Now(),
	}

	if pb.Parent != nil {
		update.ParentSlot = pb.Parent
	}

	return update
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				return
			}

			pingID := c.pingID.Add(1)
			req := &subscribeRequest{
				Ping: &pingRequest{ID: pingID},
			}

			if err := c.stream.Send(req); err != nil {
				// Ping failed; the health check decides on disconnect.
				c.setLastError(err)
			}
		}
	}
}

// healthCheckLoop monitors connection health and triggers reconnection
// if the stream goes stale.
func (c *Client) healthCheckLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.connected.Load() {
				return
			}

			lastUpdate := time.Unix(0, c.lastUpdate.Load())
			if time.Since(lastUpdate) > c.config.StaleTimeout {
				c.setLastError(fmt.Errorf("connection stale: no updates for %v", time.Since(lastUpdate)))
				c.handleDisconnect(fmt.Errorf("connection stale"))
				return
			}
		}
	}
}

// handleDisconnect handles disconnection and optionally reconnects.
func (c *Client) handleDisconnect(err error) {
	if !c.connected.CompareAndSwap(true, false) {
		return // Already disconnected
	}

	if c.config.OnDisconnect != nil {
		c.config.OnDisconnect(err)
	}

	if c.stream != nil {
		c.stream.CloseSend()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	if !c.closed.Load() {
		go c.reconnect()
	}
}

// reconnect attempts to reconnect with exponential backoff.
func (c *Client) reconnect() {
	backoff := c.config.ReconnectMinDelay
	attempt := 0

	for !c.closed.Load() {
		attempt++
		c.reconnectCount.Add(1)

		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			c.setLastError(ErrMaxReconnects)
			return
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}

		ctx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		c.cancelFunc = cancel
		c.ctx = ctx
		c.mu.Unlock()

		if err := c.connect(ctx); err != nil {
			c.setLastError(err)
			if !isRetryableError(err) && status.Code(err) != codes.Unknown {
				return
			}
			backoff = minDuration(backoff*2, c.config.ReconnectMaxDelay)
			continue
		}

		c.connected.Store(true)
		c.lastUpdate.Store(time.Now().UnixNano())

		c.wg.Add(3)
		go c.receiveLoop()
		go c.pingLoop()
		go c.healthCheckLoop()

		if c.config.OnReconnect != nil {
			c.config.OnReconnect(attempt)
		}

		return
	}
}

// Accounts returns the channel for receiving account updates.
func (c *Client) Accounts() <-chan *AccountUpdate {
	return c.accounts
}

// Slots returns the channel for receiving slot updates.
func (c *Client) Slots() <-chan *SlotUpdate {
	return c.slots
}

// Health returns the current health status of the client.
func (c *Client) Health() ClientHealth {
	lastUpdate := time.Unix(0, c.lastUpdate.Load())
	latency := time.Since(lastUpdate)
	if c.connected.Load() && latency > c.config.StaleTimeout {
		latency = c.config.StaleTimeout
	}

	return ClientHealth{
		Connected:      c.connected.Load(),
		LastSlot:       c.lastSlot.Load(),
		LastUpdate:     lastUpdate,
		Provider:       c.config.Endpoint,
		Latency:        latency,
		ReconnectCount: int(c.reconnectCount.Load()),
		LastError:      c.getLastError(),
	}
}

// Close closes the client and releases all resources.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClosed
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
	}

	c.wg.Wait()

	if c.stream != nil {
		c.stream.CloseSend()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	close(c.accounts)
	close(c.slots)

	return nil
}

// setLastError safely sets the last error.
func (c *Client) setLastError(err error) {
	c.lastErrorMu.Lock()
	c.lastError = err
	c.lastErrorMu.Unlock()
}

// getLastError safely gets the last error.
func (c *Client) getLastError() error {
	c.lastErrorMu.RLock()
	defer c.lastErrorMu.RUnlock()
	return c.lastError
}

// tokenAuth implements grpc.PerRPCCredentials for token authentication.
type tokenAuth struct {
	token      string
	requireTLS bool
}

// GetRequestMetadata returns the authentication metadata.
func (t *tokenAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{
		"x-token": t.token,
	}, nil
}

// RequireTransportSecurity returns whether TLS is required.
func (t *tokenAuth) RequireTransportSecurity() bool {
	return t.requireTLS
}

// minDuration returns the minimum of two durations.
func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// isRetryableError returns true if the error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
			return true
		}
	}

	return errors.Is(err, io.EOF) || errors.Is(err, ErrStreamClosed)
}
