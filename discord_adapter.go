package lavago

import "github.com/bwmarrin/discordgo"

// VoiceGateway sends voice state updates (gateway op 4) on a Client's
// behalf. Implementations are never expected to open discordgo's own
// voice UDP connection: playback audio flows directly from a Node to
// Discord's voice servers, bypassing the bot process entirely.
type VoiceGateway interface {
	// SendVoiceStateUpdate joins channelID, or leaves the guild's voice
	// channel entirely when channelID is empty.
	SendVoiceStateUpdate(guildID, channelID string, selfMute, selfDeaf bool) error
}

// GuildStateProvider answers the permission/membership questions
// Link.Connect needs that don't arrive as VOICE_* events.
type GuildStateProvider interface {
	// VoiceChannelGuildID returns the guild channelID belongs to. ok is
	// false if the channel is unknown.
	VoiceChannelGuildID(channelID string) (guildID string, ok bool)
	// HasConnectPermission reports whether the bot can join channelID
	// under ordinary connect-permission and voice-channel user-limit
	// rules.
	HasConnectPermission(guildID, channelID string) bool
	// HasMoveMembersPermission reports whether the bot holds the
	// guild-wide move-members permission, which lets it join a full
	// voice channel regardless of its user limit.
	HasMoveMembersPermission(guildID string) bool
}

// discordGateway is the default VoiceGateway/GuildStateProvider, backed by
// a live, already-authenticated discordgo.Session.
type discordGateway struct {
	session *discordgo.Session
}

// NewDiscordAdapters wraps session for both WithVoiceGateway and
// WithGuildState.
func NewDiscordAdapters(session *discordgo.Session) (VoiceGateway, GuildStateProvider) {
	g := &discordGateway{session: session}
	return g, g
}

func (g *discordGateway) SendVoiceStateUpdate(guildID, channelID string, selfMute, selfDeaf bool) error {
	return g.session.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf)
}

func (g *discordGateway) botUserID() string {
	if g.session.State.User != nil {
		return g.session.State.User.ID
	}
	return ""
}

func (g *discordGateway) VoiceChannelGuildID(channelID string) (string, bool) {
	ch, err := g.session.State.Channel(channelID)
	if err != nil {
		return "", false
	}
	return ch.GuildID, true
}

func (g *discordGateway) HasConnectPermission(guildID, channelID string) bool {
	perms, err := g.session.UserChannelPermissions(g.botUserID(), channelID)
	if err != nil || perms&discordgo.PermissionVoiceConnect == 0 {
		return false
	}

	ch, err := g.session.State.Channel(channelID)
	if err != nil || ch.UserLimit == 0 {
		return true
	}

	guild, err := g.session.State.Guild(guildID)
	if err != nil {
		return true
	}
	occupied := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			occupied++
		}
	}
	return occupied < ch.UserLimit
}

func (g *discordGateway) HasMoveMembersPermission(guildID string) bool {
	guild, err := g.session.State.Guild(guildID)
	if err != nil || len(guild.Channels) == 0 {
		return false
	}
	// move_members is guild-wide; any channel's computed overwrites agree.
	perms, err := g.session.UserChannelPermissions(g.botUserID(), guild.Channels[0].ID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionVoiceMoveMembers != 0
}

// OnVoiceServerUpdate is shaped to register directly with discordgo:
// session.AddHandler(client.OnVoiceServerUpdate).
func (c *Client) OnVoiceServerUpdate(_ *discordgo.Session, ev *discordgo.VoiceServerUpdate) {
	link := c.getLinkIfExists(ev.GuildID)
	if link == nil {
		return
	}
	link.onVoiceServerUpdate(ev.Token, ev.Endpoint)
}

// OnVoiceStateUpdate is shaped to register directly with discordgo:
// session.AddHandler(client.OnVoiceStateUpdate). Updates for users other
// than the bot itself are ignored.
func (c *Client) OnVoiceStateUpdate(_ *discordgo.Session, ev *discordgo.VoiceStateUpdate) {
	if ev.UserID != c.userID {
		return
	}
	link := c.getLinkIfExists(ev.GuildID)
	if link == nil {
		return
	}
	link.onVoiceStateUpdate(ev.SessionID, ev.ChannelID)
}
