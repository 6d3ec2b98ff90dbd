package lavago

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Node is a named remote audio worker. Its websocket session, stats
// snapshot, and set of currently-assigned Links are owned exclusively by
// the Node; the Client owns the Node itself.
type Node struct {
	name    string
	cfg     Config
	wsURI   *url.URL
	restURI *url.URL
	client  *Client

	socket *nodeSocket
	ctx    context.Context

	mu        sync.RWMutex
	links     map[string]*Link // guildID -> Link, non-owning
	stats     *NodeStats
	available bool
	closing   bool
}

func newNode(client *Client, name string, cfg Config) *Node {
	n := &Node{
		name:    name,
		cfg:     cfg,
		wsURI:   mustParseURL(cfg.socketEndpoint()),
		restURI: mustParseURL(cfg.httpEndpoint()),
		client:  client,
		links:   make(map[string]*Link),
	}
	n.socket = newNodeSocket(cfg)
	n.socket.onMessage = n.handleMessage
	n.socket.onClose = n.handleClose
	return n
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// Name returns the node's registry key.
func (n *Node) Name() string { return n.name }

// Available reports whether the handshake has completed and the node is
// not presently in a reconnect cycle.
func (n *Node) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.available
}

// Stats returns the latest parsed stats snapshot, or nil if none has been
// received yet.
func (n *Node) Stats() *NodeStats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// Connect dials the node's websocket, retrying transport failures with
// integral-seconds exponential backoff (doubling from cfg.ReconnectBaseDelay,
// uncapped) until it succeeds or ctx is cancelled. An authentication
// rejection (401/403) is fatal: Connect returns immediately without
// retrying and the node never becomes available.
func (n *Node) Connect(ctx context.Context) error {
	n.ctx = ctx
	headers := http.Header{}
	headers.Set("Authorization", n.cfg.Authorization)
	headers.Set("Num-Shards", fmt.Sprint(n.client.shardCount))
	headers.Set("User-Id", n.client.userID)
	if n.cfg.UserAgent != "" {
		headers.Set("User-Agent", n.cfg.UserAgent)
	}

	delay := n.cfg.ReconnectBaseDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}

	for {
		status, err := n.socket.dial(headers)
		if err == nil {
			n.mu.Lock()
			n.available = true
			n.closing = false
			n.mu.Unlock()
			n.client.logger().Info("node connected", "node", n.name)
			n.client.metrics.nodeConnected(ctx)
			n.client.balancer.onNodeConnect(n)
			return nil
		}

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			n.client.logger().Error("node handshake rejected, abandoning",
				"node", n.name, "status", status)
			return fmt.Errorf("%w: node %q handshake rejected with status %d", ErrNodeException, n.name, status)
		}

		n.client.logger().Error("node dial failed, retrying",
			"node", n.name, "error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Disconnect initiates a graceful local close. The close is completed
// asynchronously; handleClose runs the load-balancer disconnect hook once
// the socket actually tears down.
func (n *Node) Disconnect() error {
	n.mu.Lock()
	n.closing = true
	n.mu.Unlock()
	n.client.logger().Info("closing node connection", "node", n.name)
	return n.socket.Close()
}

// Send serializes msg and writes it to the node's socket.
func (n *Node) Send(msg any) error {
	if !n.Available() {
		return ErrNodeUnavailable
	}
	return n.socket.SendJSON(msg)
}

func (n *Node) addLink(l *Link) {
	n.mu.Lock()
	n.links[l.guildID] = l
	n.mu.Unlock()
}

func (n *Node) removeLink(guildID string) {
	n.mu.Lock()
	delete(n.links, guildID)
	n.mu.Unlock()
}

func (n *Node) linkSnapshot() []*Link {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Link, 0, len(n.links))
	for _, l := range n.links {
		out = append(out, l)
	}
	return out
}

// GetTracks performs a REST track lookup. On a non-2xx response it retries
// with exponential backoff up to cfg.RESTAttempts when cfg.RetryRESTOnFailure
// is set, otherwise it returns an empty result.
func (n *Node) GetTracks(ctx context.Context, query string) (*AudioTrackPlaylist, error) {
	endpoint := n.cfg.httpEndpoint() + "/loadtracks?identifier=" + url.QueryEscape(query)

	attempts := 1
	if n.cfg.RetryRESTOnFailure && n.cfg.RESTAttempts > 1 {
		attempts = n.cfg.RESTAttempts
	}

	delay := 500 * time.Millisecond
	for i := 0; i < attempts; i++ {
		reqID := uuid.New().String()
		result, status, err := n.doGetTracks(ctx, endpoint)
		if err == nil && status >= 200 && status < 300 {
			return result, nil
		}
		n.client.logger().Warn("node track lookup failed",
			"node", n.name, "request_id", reqID, "status", status, "error", err, "attempt", i+1)
		if !n.cfg.RetryRESTOnFailure {
			break
		}
		if i < attempts-1 {
			n.client.metrics.restRetried(ctx)
			select {
			case <-ctx.Done():
				return &AudioTrackPlaylist{LoadType: LoadTypeNoMatches}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return &AudioTrackPlaylist{LoadType: LoadTypeNoMatches}, nil
}

func (n *Node) doGetTracks(ctx context.Context, endpoint string) (*AudioTrackPlaylist, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", n.cfg.Authorization)
	if n.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", n.cfg.UserAgent)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNodeException, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", ErrNodeException, resp.StatusCode)
	}

	var wire searchResultWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, resp.StatusCode, err
	}
	return wire.toPlaylist(), resp.StatusCode, nil
}

// handleMessage decodes one inbound websocket frame and dispatches it.
func (n *Node) handleMessage(data []byte) {
	var bp basePayload
	if err := json.Unmarshal(data, &bp); err != nil {
		n.client.logger().Warn("node sent malformed frame", "node", n.name, "error", err)
		return
	}

	switch bp.Op {
	case "stats":
		stats, err := parseNodeStats(data)
		if err != nil {
			n.client.logger().Warn("failed to parse stats frame", "node", n.name, "error", err)
			return
		}
		n.mu.Lock()
		n.stats = stats
		n.mu.Unlock()
	case "playerUpdate":
		n.handlePlayerUpdate(data, bp.GuildID)
	case "event":
		n.handleEvent(data, bp.GuildID)
	case "error":
		n.client.logger().Error("node reported an error frame, terminating session",
			"node", n.name, "guild_id", bp.GuildID)
		if err := n.socket.Close(); err != nil {
			n.client.logger().Warn("error closing node socket after error frame", "node", n.name, "error", err)
		}
	default:
		n.client.logger().Info("received unknown op", "node", n.name, "op", bp.Op)
	}
}

func (n *Node) handlePlayerUpdate(data []byte, guildID string) {
	link := n.client.getLinkIfExists(guildID)
	if link == nil {
		return
	}
	var pu playerUpdatePayload
	if err := json.Unmarshal(data, &pu); err != nil {
		n.client.logger().Warn("failed to parse playerUpdate frame", "node", n.name, "error", err)
		return
	}
	link.Player().provideState(pu.State.Position, pu.State.Time)
}

func (n *Node) handleEvent(data []byte, guildID string) {
	link := n.client.getLinkIfExists(guildID)
	if link == nil {
		return // the Link was destroyed
	}

	var ef eventFramePayload
	if err := json.Unmarshal(data, &ef); err != nil {
		n.client.logger().Warn("failed to parse event frame", "node", n.name, "error", err)
		return
	}

	player := link.Player()
	switch ef.Type {
	case trackStartEvent:
		n.client.metrics.trackStarted(context.Background())
		player.triggerEvent(TrackStart{Player: player, Track: player.Current()})
	case trackEndEvent:
		n.client.metrics.trackEnded(context.Background())
		player.triggerEvent(TrackEnd{Player: player, Track: player.Current(), Reason: TrackEndReason(ef.Reason)})
	case trackExceptionEvent:
		player.triggerEvent(TrackException{Player: player, Track: player.Current(), Error: ef.Error})
	case trackStuckEvent:
		player.triggerEvent(TrackStuck{Player: player, Track: player.Current(), ThresholdMs: ef.ThresholdMs})
	case webSocketClosedEvent:
		if ef.Code == 4006 && ef.ByRemote {
			n.client.logger().Warn("voice session unrecoverable, destroying link",
				"node", n.name, "guild_id", guildID, "code", ef.Code)
			_ = link.Destroy()
		}
	default:
		n.client.logger().Info("received unknown event type", "node", n.name, "type", ef.Type)
	}
}

// handleClose runs once the socket tears down, whether from a peer close
// frame, a read error, or a local Disconnect call.
func (n *Node) handleClose(code int, reason string, reconnectRequested bool) {
	n.mu.Lock()
	wasClosing := n.closing
	n.closing = false
	n.available = false
	n.mu.Unlock()

	if reason == "" {
		reason = "<no reason given>"
	}
	if code == 1000 {
		n.client.logger().Info("node connection closed gracefully", "node", n.name, "reason", reason)
	} else {
		n.client.logger().Warn("node connection closed unexpectedly", "node", n.name, "code", code, "reason", reason)
	}

	n.client.metrics.nodeDisconnected(context.Background())
	n.client.balancer.onNodeDisconnect(n)

	if !wasClosing && reconnectRequested && n.ctx != nil {
		go func() {
			if err := n.Connect(n.ctx); err != nil {
				n.client.logger().Error("node reconnect failed permanently", "node", n.name, "error", err)
			}
		}()
	}
}
