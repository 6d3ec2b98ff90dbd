package lavago

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Client is the facade an embedding bot talks to: it owns the fleet of
// Nodes, the per-guild Links, and the Discord gateway adapters that feed
// them voice events.
type Client struct {
	userID     string
	shardCount int

	voiceGateway VoiceGateway
	guildState   GuildStateProvider
	eventAdapter EventAdapter
	metrics      *Metrics
	slogger      *slog.Logger

	balancer *loadBalancer

	mu    sync.RWMutex
	nodes map[string]*Node
	links map[string]*Link
}

// ClientOption configures optional Client collaborators.
type ClientOption func(*Client)

// WithLogger overrides the slog.Logger used for all diagnostic output.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.slogger = logger }
}

// WithMetrics attaches an OpenTelemetry instrument bundle. Omit this
// option to run without metrics entirely.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithVoiceGateway supplies the collaborator Links use to join/leave voice
// channels. Required before any Link can connect.
func WithVoiceGateway(g VoiceGateway) ClientOption {
	return func(c *Client) { c.voiceGateway = g }
}

// WithGuildState supplies the collaborator used to answer guild-scoped
// questions outside the VOICE_* event stream.
func WithGuildState(g GuildStateProvider) ClientOption {
	return func(c *Client) { c.guildState = g }
}

// WithEventAdapter registers a Client-wide Player event listener, run
// after the internal reset-on-end handler and before any adapter
// registered directly on a Player via AddEventAdapter.
func WithEventAdapter(a EventAdapter) ClientOption {
	return func(c *Client) { c.eventAdapter = a }
}

// NewClient constructs a Client for the given bot user id and gateway
// shard count. Nodes must be added with AddNode (or LoadFleetConfig)
// before any Link can be created.
func NewClient(userID string, shardCount int, opts ...ClientOption) *Client {
	c := &Client{
		userID:     userID,
		shardCount: shardCount,
		nodes:      make(map[string]*Node),
		links:      make(map[string]*Link),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.balancer = newLoadBalancer(c)
	return c
}

func (c *Client) logger() *slog.Logger {
	if c.slogger != nil {
		return c.slogger
	}
	return slog.Default()
}

// AddNode registers a new worker under name and begins dialing it in the
// background. The returned Node becomes Available once the handshake
// completes; Connect retries transport failures indefinitely but returns
// immediately (without retrying) on an authentication rejection.
func (c *Client) AddNode(ctx context.Context, name string, cfg Config) *Node {
	n := newNode(c, name, cfg)
	c.mu.Lock()
	c.nodes[name] = n
	c.mu.Unlock()

	go func() {
		if err := n.Connect(ctx); err != nil {
			c.logger().Error("node connect failed permanently", "node", name, "error", err)
		}
	}()
	return n
}

// LoadFleetConfig reads a YAML fleet file from path and registers every
// node it describes.
func (c *Client) LoadFleetConfig(ctx context.Context, path string) error {
	fc, err := LoadFleetConfig(path)
	if err != nil {
		return err
	}
	return c.AddNodesFromFleetConfig(ctx, fc)
}

// AddNodesFromFleetConfig registers every node described by fc.
func (c *Client) AddNodesFromFleetConfig(ctx context.Context, fc *FleetConfig) error {
	for _, spec := range fc.Nodes {
		if spec.Name == "" {
			return fmt.Errorf("lavago: fleet config contains a node with no name")
		}
		c.AddNode(ctx, spec.Name, spec.toConfig())
	}
	return nil
}

func (c *Client) nodeSnapshot() []*Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

// GetBestNode exposes the load balancer's node selection directly, for
// embedders that want to pin a Link to a specific node rather than let
// GetLink choose.
func (c *Client) GetBestNode() (*Node, error) {
	return c.balancer.determineBestNode()
}

// GetLink returns the Link for guildID, creating one on the best
// available node if it doesn't exist yet.
func (c *Client) GetLink(guildID string) (*Link, error) {
	c.mu.RLock()
	existing, ok := c.links[guildID]
	c.mu.RUnlock()
	if ok {
		return existing, nil
	}

	node, err := c.balancer.determineBestNode()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.links[guildID]; ok {
		return existing, nil
	}
	l := newLink(c, guildID, node)
	c.links[guildID] = l
	c.metrics.linkConnected(context.Background())
	return l, nil
}

func (c *Client) linkSnapshot() []*Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Link, 0, len(c.links))
	for _, l := range c.links {
		out = append(out, l)
	}
	return out
}

func (c *Client) getLinkIfExists(guildID string) *Link {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.links[guildID]
}

func (c *Client) removeLink(guildID string) {
	c.mu.Lock()
	delete(c.links, guildID)
	c.mu.Unlock()
	c.metrics.linkDestroyed(context.Background())
}

// PlayingGuilds reports, per node name, that node's reported playing-player
// count. Nodes with no stats yet are omitted.
func (c *Client) PlayingGuilds() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.nodes))
	for name, n := range c.nodes {
		stats := n.Stats()
		if stats == nil {
			continue
		}
		out[name] = stats.PlayingPlayers
	}
	return out
}

// TotalPlayingGuilds sums PlayingGuilds across every node.
func (c *Client) TotalPlayingGuilds() int {
	total := 0
	for _, count := range c.PlayingGuilds() {
		total += count
	}
	return total
}
