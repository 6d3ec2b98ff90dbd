package lavago

import (
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/lists"
	"github.com/emirpasic/gods/lists/arraylist"
)

// BassMode selects one of the built-in equalizer bass presets, each a
// 2-band adjustment to bands 0 and 1.
type BassMode int

const (
	BassModeOff BassMode = iota
	BassModeLow
	BassModeMedium
	BassModeHigh
	BassModeExtreme
	BassModeSicko
)

// bassPresets mirrors original_source's Equalizer.bassboost: each preset
// touches only bands 0 and 1.
var bassPresets = map[BassMode][2]float64{
	BassModeOff:     {0.0, 0.0},
	BassModeLow:     {0.25, 0.15},
	BassModeMedium:  {0.50, 0.25},
	BassModeHigh:    {0.75, 0.50},
	BassModeExtreme: {1.0, 0.75},
	BassModeSicko:   {1.0, 1.0},
}

const equalizerBands = 15

// EQBand is a single equalizer band adjustment passed to SetEq/SetGain.
type EQBand struct {
	Band int
	Gain float64
}

func clampGain(g float64) float64 {
	if g < -0.25 {
		return -0.25
	}
	if g > 1.0 {
		return 1.0
	}
	return g
}

// Player tracks one guild's playback state and issues player commands to
// its Link's current Node. Position is extrapolated between playerUpdate
// frames rather than polled.
type Player struct {
	link *Link

	mu         sync.RWMutex
	current    *AudioTrack
	paused     bool
	volume     int
	equalizer  [equalizerBands]float64
	position   time.Duration
	updateTime time.Time

	queue    lists.List
	adapters []EventAdapter
}

func newPlayer(link *Link) *Player {
	return &Player{
		link:   link,
		volume: 100,
		queue:  arraylist.New(),
	}
}

// Current returns the track presently assigned to this player, or nil.
func (p *Player) Current() *AudioTrack {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Paused reports whether playback is paused.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// Volume returns the last volume sent or acknowledged, 0-150.
func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// Position extrapolates playback position from the last playerUpdate
// frame: advancing with wall-clock time while playing, frozen while
// paused, and clamped to the current track's duration.
func (p *Player) Position() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if p.current == nil {
		return 0
	}
	pos := p.position
	if !p.paused && !p.updateTime.IsZero() {
		pos += time.Since(p.updateTime)
	}
	if pos > p.current.Duration {
		return p.current.Duration
	}
	return pos
}

// provideState records a playerUpdate frame's position/time pair.
func (p *Player) provideState(positionMs, timeMs int64) {
	p.mu.Lock()
	p.position = time.Duration(positionMs) * time.Millisecond
	p.updateTime = time.UnixMilli(timeMs)
	p.mu.Unlock()
}

// Play starts playback of track on the Link's current Node. noReplace
// follows the same-track-already-playing semantics of the wire protocol:
// when true, a node leaves an already-playing track alone instead of
// restarting it.
func (p *Player) Play(track *AudioTrack, startTime time.Duration, noReplace bool) error {
	if track == nil {
		return fmt.Errorf("%w: play requires a track", ErrIllegalAction)
	}
	node := p.link.Node()
	if node == nil {
		return ErrNoNodesAvailable
	}

	p.mu.Lock()
	p.current = track
	p.paused = false
	p.position = startTime
	p.updateTime = time.Now()
	p.mu.Unlock()

	return node.Send(playPayload{
		Op:        "play",
		GuildID:   p.link.GuildID(),
		Track:     track.Encoded,
		StartTime: startTime.Milliseconds(),
		NoReplace: noReplace,
	})
}

// Stop halts playback without destroying the Link. The node answers with
// a TrackEnd(STOPPED) event, which is what actually clears current/position
// via the internal event adapter.
func (p *Player) Stop() error {
	node := p.link.Node()
	if node == nil {
		return ErrNoNodesAvailable
	}
	return node.Send(stopPayload{Op: "stop", GuildID: p.link.GuildID()})
}

// Destroy sends op=destroy to the owning node, if reachable, and drops
// every registered event adapter. Called by Link.Destroy; not meant to be
// called directly by embedders.
func (p *Player) Destroy() error {
	var sendErr error
	if node := p.link.Node(); node != nil {
		sendErr = node.Send(destroyPayload{Op: "destroy", GuildID: p.link.GuildID()})
	}
	p.mu.Lock()
	p.adapters = nil
	p.mu.Unlock()
	p.reset()
	return sendErr
}

// SetPaused toggles playback and fires TrackPause/TrackResume.
func (p *Player) SetPaused(paused bool) error {
	node := p.link.Node()
	if node == nil {
		return ErrNoNodesAvailable
	}
	if err := node.Send(pausePayload{Op: "pause", GuildID: p.link.GuildID(), Pause: paused}); err != nil {
		return err
	}

	p.mu.Lock()
	// Freeze/thaw the position baseline at the moment the command is
	// acknowledged locally; provideState will correct for drift on the
	// next playerUpdate frame.
	p.position = p.positionLocked()
	p.updateTime = time.Now()
	p.paused = paused
	p.mu.Unlock()

	if paused {
		p.triggerEvent(TrackPause{Player: p})
	} else {
		p.triggerEvent(TrackResume{Player: p})
	}
	return nil
}

// SeekTo jumps to position within the current track. Fails with
// ErrIllegalAction if there is no current track or it isn't seekable.
func (p *Player) SeekTo(position time.Duration) error {
	p.mu.RLock()
	current := p.current
	p.mu.RUnlock()
	if current == nil {
		return fmt.Errorf("%w: no track is loaded", ErrIllegalAction)
	}
	if !current.Seekable {
		return fmt.Errorf("%w: track is not seekable", ErrIllegalAction)
	}
	if position > current.Duration {
		return fmt.Errorf("%w: position exceeds track duration", ErrIllegalAction)
	}

	node := p.link.Node()
	if node == nil {
		return ErrNoNodesAvailable
	}
	if err := node.Send(seekPayload{Op: "seek", GuildID: p.link.GuildID(), Position: position.Milliseconds()}); err != nil {
		return err
	}

	p.mu.Lock()
	p.position = position
	p.updateTime = time.Now()
	p.mu.Unlock()
	return nil
}

// SetVolume updates playback volume, 0-150.
func (p *Player) SetVolume(volume int) error {
	if volume < 0 || volume > 150 {
		return fmt.Errorf("%w: volume must be between 0 and 150", ErrIllegalAction)
	}
	node := p.link.Node()
	if node == nil {
		return ErrNoNodesAvailable
	}
	if err := node.Send(volumePayload{Op: "volume", GuildID: p.link.GuildID(), Volume: volume}); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	return nil
}

// SetGain adjusts a single equalizer band. A band outside [0, 14] is
// silently dropped, matching SetEq's batch semantics.
func (p *Player) SetGain(band int, gain float64) error {
	return p.SetEq([]EQBand{{Band: band, Gain: gain}})
}

// SetEq clamps each gain into [-0.25, 1.0], drops any band index outside
// [0, 14], and sends the surviving bands as one equalizer frame.
func (p *Player) SetEq(bands []EQBand) error {
	node := p.link.Node()
	if node == nil {
		return ErrNoNodesAvailable
	}

	wire := make([]eqBand, 0, len(bands))
	p.mu.Lock()
	for _, b := range bands {
		if b.Band < 0 || b.Band >= equalizerBands {
			continue
		}
		gain := clampGain(b.Gain)
		p.equalizer[b.Band] = gain
		wire = append(wire, eqBand{Band: b.Band, Gain: gain})
	}
	p.mu.Unlock()

	if len(wire) == 0 {
		return nil
	}
	return node.Send(equalizerPayload{Op: "equalizer", GuildID: p.link.GuildID(), Bands: wire})
}

// SetBass applies one of the built-in 2-band bass presets to bands 0-1.
func (p *Player) SetBass(mode BassMode) error {
	preset, ok := bassPresets[mode]
	if !ok {
		return fmt.Errorf("%w: unknown bass mode", ErrIllegalAction)
	}
	return p.SetEq([]EQBand{{Band: 0, Gain: preset[0]}, {Band: 1, Gain: preset[1]}})
}

// Enqueue appends a track to the supplemental local queue. lavago never
// auto-advances this queue; embedders call SkipNext (typically from a
// TrackEnd handler) to play the next entry.
func (p *Player) Enqueue(track *AudioTrack) {
	p.queue.Add(track)
}

// QueueLen returns the number of tracks waiting in the local queue.
func (p *Player) QueueLen() int {
	return p.queue.Size()
}

// SkipNext dequeues and plays the next track, if any. It reports
// (nil, false, nil) when the queue is empty.
func (p *Player) SkipNext(startTime time.Duration, noReplace bool) (*AudioTrack, bool, error) {
	head, ok := p.queue.Get(0)
	if !ok {
		return nil, false, nil
	}
	p.queue.Remove(0)
	track := head.(*AudioTrack)
	if err := p.Play(track, startTime, noReplace); err != nil {
		return track, true, err
	}
	return track, true, nil
}

// AddEventAdapter registers an additional event listener. The adapter
// passed to NewClient (if any) and the internal reset-on-end handler run
// before any adapter registered here.
func (p *Player) AddEventAdapter(a EventAdapter) {
	p.mu.Lock()
	p.adapters = append(p.adapters, a)
	p.mu.Unlock()
}

// triggerEvent runs the internal adapter, then the client-wide adapter (if
// any), then every adapter registered via AddEventAdapter. A panic from any
// embedder-supplied adapter is recovered and logged so one bad listener
// can't take down the dispatch goroutine.
func (p *Player) triggerEvent(e Event) {
	internalEventAdapter{}.OnEvent(e)

	p.mu.RLock()
	adapters := make([]EventAdapter, 0, len(p.adapters)+1)
	if global := p.link.client.eventAdapter; global != nil {
		adapters = append(adapters, global)
	}
	adapters = append(adapters, p.adapters...)
	p.mu.RUnlock()

	for _, a := range adapters {
		p.safeDispatch(a, e)
	}
}

func (p *Player) safeDispatch(a EventAdapter, e Event) {
	defer func() {
		if r := recover(); r != nil {
			p.link.client.logger().Error("event adapter panicked", "guild_id", p.link.GuildID(), "panic", r)
		}
	}()
	a.OnEvent(e)
}

// reset clears track/position state, called on a terminal TrackEnd and on
// Destroy.
func (p *Player) reset() {
	p.mu.Lock()
	p.current = nil
	p.paused = false
	p.position = 0
	p.updateTime = time.Time{}
	p.mu.Unlock()
}

// nodeChanged replays the player's current track, pause state, and volume
// to the Link's new Node after a migration. The equalizer is not replayed:
// the new node starts with flat bands, although p.equalizer still holds the
// gains last sent.
func (p *Player) nodeChanged() {
	p.mu.RLock()
	current := p.current
	paused := p.paused
	volume := p.volume
	position := p.positionLocked()
	p.mu.RUnlock()

	if current == nil {
		return
	}
	node := p.link.Node()
	if node == nil {
		return
	}

	if err := node.Send(playPayload{
		Op:        "play",
		GuildID:   p.link.GuildID(),
		Track:     current.Encoded,
		StartTime: position.Milliseconds(),
		NoReplace: false,
	}); err != nil {
		p.link.client.logger().Warn("failed to resume track on migrated node", "guild_id", p.link.GuildID(), "error", err)
		return
	}
	if paused {
		_ = node.Send(pausePayload{Op: "pause", GuildID: p.link.GuildID(), Pause: true})
	}
	if volume != 100 {
		_ = node.Send(volumePayload{Op: "volume", GuildID: p.link.GuildID(), Volume: volume})
	}
}
