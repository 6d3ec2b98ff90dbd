package lavago

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LinkState is the lifecycle of a Link. Once State() is greater than
// LinkDisconnecting, the only legal next state is LinkDestroyed.
type LinkState int

const (
	LinkNotConnected LinkState = iota
	LinkConnecting
	LinkConnected
	LinkDisconnecting
	LinkDestroying
	LinkDestroyed
)

func (s LinkState) String() string {
	switch s {
	case LinkNotConnected:
		return "NOT_CONNECTED"
	case LinkConnecting:
		return "CONNECTING"
	case LinkConnected:
		return "CONNECTED"
	case LinkDisconnecting:
		return "DISCONNECTING"
	case LinkDestroying:
		return "DESTROYING"
	case LinkDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// joinConfirmTimeout bounds how long Connect waits for the platform to
// confirm the bot actually landed in the requested voice channel.
const joinConfirmTimeout = 10 * time.Second

// Link correlates a guild's two asynchronous voice-gateway events (the
// server update carrying token/endpoint, and the state update carrying the
// session id and channel) into a single voiceUpdate frame sent to whichever
// Node currently serves the guild.
type Link struct {
	guildID string
	client  *Client

	mu        sync.Mutex
	state     LinkState
	node      *Node
	player    *Player
	channelID string

	sessionID      string
	serverUpdate   *voiceServerUpdate
	lastVoiceFrame *voiceUpdatePayload

	joinWait        chan struct{}
	joinWaitChannel string
}

func newLink(client *Client, guildID string, node *Node) *Link {
	l := &Link{
		guildID: guildID,
		client:  client,
		node:    node,
		state:   LinkNotConnected,
	}
	l.player = newPlayer(l)
	node.addLink(l)
	return l
}

// GuildID is the guild this Link mediates voice for.
func (l *Link) GuildID() string { return l.guildID }

// State returns the current lifecycle state.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Node returns the worker currently assigned to this Link.
func (l *Link) Node() *Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.node
}

// Player returns this Link's Player. The Player is created together with
// the Link by newLink, not on first access.
func (l *Link) Player() *Player {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.player
}

func (l *Link) setState(next LinkState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state > LinkDisconnecting && next != LinkDestroyed {
		return ErrIllegalAction
	}
	l.state = next
	return nil
}

// Connect validates that channelID belongs to this Link's guild and that
// the bot has permission to join it (either plain connect permission, or
// move_members to bypass the channel's user limit), then sends a gateway
// op-4 frame and blocks until the platform confirms the bot's voice state
// landed in that channel, or joinConfirmTimeout elapses.
func (l *Link) Connect(ctx context.Context, channelID string, selfMute, selfDeaf bool) error {
	guildID, ok := l.client.guildState.VoiceChannelGuildID(channelID)
	if !ok || guildID != l.guildID {
		return fmt.Errorf("%w: channel %q does not belong to guild %q", ErrIllegalAction, channelID, l.guildID)
	}
	if !l.client.guildState.HasConnectPermission(l.guildID, channelID) &&
		!l.client.guildState.HasMoveMembersPermission(l.guildID) {
		return fmt.Errorf("%w: missing permission to join channel %q", ErrIllegalAction, channelID)
	}

	if err := l.setState(LinkConnecting); err != nil {
		return err
	}

	joined := make(chan struct{})
	l.mu.Lock()
	l.channelID = channelID
	l.joinWait = joined
	l.joinWaitChannel = channelID
	l.mu.Unlock()

	if err := l.client.voiceGateway.SendVoiceStateUpdate(l.guildID, channelID, selfMute, selfDeaf); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, joinConfirmTimeout)
	defer cancel()
	select {
	case <-joined:
		return nil
	case <-waitCtx.Done():
		return fmt.Errorf("%w: timed out waiting for voice state confirmation", ErrIllegalAction)
	}
}

// Disconnect sends a gateway op-4 with a null channel and transitions to
// DISCONNECTING. The worker-side session is released separately, when the
// platform's own VOICE_STATE_UPDATE confirming the departure arrives (see
// onVoiceStateUpdate).
func (l *Link) Disconnect() error {
	if err := l.setState(LinkDisconnecting); err != nil {
		return err
	}
	return l.client.voiceGateway.SendVoiceStateUpdate(l.guildID, "", false, false)
}

// Destroy tears the Link down permanently: destroys the Player (which
// sends op=destroy to the owning node if one is assigned), removes itself
// from the Node's and Client's registries, and becomes unusable.
func (l *Link) Destroy() error {
	if err := l.setState(LinkDestroying); err != nil {
		return err
	}

	l.mu.Lock()
	node := l.node
	player := l.player
	l.mu.Unlock()

	if player != nil {
		_ = player.Destroy()
	}
	if node != nil {
		node.removeLink(l.guildID)
	}
	l.client.removeLink(l.guildID)
	return l.setState(LinkDestroyed)
}

// onVoiceServerUpdate records the token/endpoint half of the handshake and
// attempts to complete it.
func (l *Link) onVoiceServerUpdate(token, endpoint string) {
	l.mu.Lock()
	l.serverUpdate = &voiceServerUpdate{Token: token, Endpoint: endpoint, GuildID: l.guildID}
	l.mu.Unlock()
	l.tryCompleteHandshake()
}

// onVoiceStateUpdate records the session id half of the handshake. A null
// channelID means the bot left (or was removed from) the channel: unless
// the Link is already DESTROYED, it collapses back to NOT_CONNECTED and,
// if a node was assigned, releases the worker-side session.
func (l *Link) onVoiceStateUpdate(sessionID, channelID string) {
	if channelID == "" {
		l.mu.Lock()
		node := l.node
		wasDestroyed := l.state == LinkDestroyed
		l.sessionID = ""
		l.mu.Unlock()

		if !wasDestroyed {
			_ = l.setState(LinkNotConnected)
			if node != nil {
				_ = node.Send(destroyPayload{Op: "destroy", GuildID: l.guildID})
			}
		}
		return
	}

	l.mu.Lock()
	l.sessionID = sessionID
	l.channelID = channelID
	if l.joinWait != nil && l.joinWaitChannel == channelID {
		close(l.joinWait)
		l.joinWait = nil
	}
	l.mu.Unlock()
	l.tryCompleteHandshake()
}

func (l *Link) tryCompleteHandshake() {
	l.mu.Lock()
	if l.serverUpdate == nil || l.sessionID == "" {
		l.mu.Unlock()
		return
	}
	frame := &voiceUpdatePayload{
		Op:        "voiceUpdate",
		GuildID:   l.guildID,
		SessionID: l.sessionID,
		Event:     *l.serverUpdate,
	}
	l.lastVoiceFrame = frame
	node := l.node
	l.mu.Unlock()

	if node == nil {
		return
	}
	if err := node.Send(frame); err != nil {
		l.client.logger().Warn("failed to deliver voice update", "guild_id", l.guildID, "error", err)
		return
	}
	_ = l.setState(LinkConnected)
}

// ChangeNode migrates this Link to a new Node, replaying the last voice
// update before any other command can reach it so the node has a valid
// voice session before it receives play/pause/volume traffic.
func (l *Link) ChangeNode(next *Node) {
	l.mu.Lock()
	old := l.node
	frame := l.lastVoiceFrame
	l.node = next
	l.mu.Unlock()

	if old != nil {
		old.removeLink(l.guildID)
	}
	next.addLink(l)

	if frame != nil {
		if err := next.Send(frame); err != nil {
			l.client.logger().Warn("failed to replay voice update on migration",
				"guild_id", l.guildID, "node", next.Name(), "error", err)
		}
	}
	l.player.nodeChanged()
}

// GetTracks resolves query against this Link's current node.
func (l *Link) GetTracks(ctx context.Context, query string) (*AudioTrackPlaylist, error) {
	node := l.Node()
	if node == nil {
		return nil, ErrNoNodesAvailable
	}
	return node.GetTracks(ctx, query)
}

// GetTracksYT resolves query as a YouTube search.
func (l *Link) GetTracksYT(ctx context.Context, query string) (*AudioTrackPlaylist, error) {
	return l.GetTracks(ctx, "ytsearch:"+query)
}

// GetTracksSC resolves query as a SoundCloud search.
func (l *Link) GetTracksSC(ctx context.Context, query string) (*AudioTrackPlaylist, error) {
	return l.GetTracks(ctx, "scsearch:"+query)
}
