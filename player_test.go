package lavago

import (
	"errors"
	"testing"
	"time"
)

func trackFixture(duration time.Duration, seekable bool) *AudioTrack {
	return &AudioTrack{Encoded: "QAAA", Title: "fixture", Duration: duration, Seekable: seekable}
}

func TestPlayerPositionExtrapolatesWhilePlaying(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	track := trackFixture(60*time.Second, true)

	if err := p.Play(track, 10*time.Second, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	p.provideState(10000, time.Now().Add(-2*time.Second).UnixMilli())

	pos := p.Position()
	if pos < 11900*time.Millisecond || pos > 12100*time.Millisecond {
		t.Fatalf("expected position near 12s, got %v", pos)
	}
}

func TestPlayerPositionClampsToDuration(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	track := trackFixture(60*time.Second, true)
	if err := p.Play(track, 0, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	p.provideState(10000, time.Now().Add(-120*time.Second).UnixMilli())

	if got := p.Position(); got != 60*time.Second {
		t.Fatalf("expected position clamped to 60s, got %v", got)
	}
}

func TestPlayerPositionFrozenWhilePaused(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	track := trackFixture(60*time.Second, true)
	if err := p.Play(track, 0, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	p.provideState(5000, time.Now().Add(-10*time.Second).UnixMilli())
	if err := p.SetPaused(true); err != nil {
		t.Fatalf("set paused: %v", err)
	}

	first := p.Position()
	time.Sleep(5 * time.Millisecond)
	second := p.Position()
	if first != second {
		t.Fatalf("expected position to stay frozen while paused: %v != %v", first, second)
	}
}

func TestPlayerSeekRequiresCurrentTrack(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	if err := p.SeekTo(time.Second); !isIllegal(err) {
		t.Fatalf("expected ErrIllegalAction with no current track, got %v", err)
	}
}

func TestPlayerSeekRejectsNonSeekable(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	if err := p.Play(trackFixture(30*time.Second, false), 0, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := p.SeekTo(5 * time.Second); !isIllegal(err) {
		t.Fatalf("expected ErrIllegalAction for non-seekable track, got %v", err)
	}
}

func TestPlayerSeekRejectsPastDuration(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	if err := p.Play(trackFixture(30*time.Second, true), 0, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := p.SeekTo(time.Minute); !isIllegal(err) {
		t.Fatalf("expected ErrIllegalAction past track duration, got %v", err)
	}
}

func TestPlayerStopDoesNotResetLocally(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	if err := p.Play(trackFixture(30*time.Second, true), 0, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.Current() == nil {
		t.Fatal("Stop must not clear current locally; that is the internal adapter's job on TrackEnd")
	}
	ops := rec.ops(t)
	if len(ops) != 2 || ops[0] != "play" || ops[1] != "stop" {
		t.Fatalf("unexpected frames sent: %v", ops)
	}
}

func TestPlayerTrackEndResetsViaInternalAdapter(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	if err := p.Play(trackFixture(30*time.Second, true), 0, true); err != nil {
		t.Fatalf("play: %v", err)
	}
	p.triggerEvent(TrackEnd{Player: p, Track: p.Current(), Reason: TrackEndStopped})
	if p.Current() != nil {
		t.Fatal("expected TrackEnd to reset the player via the internal adapter")
	}
}

func TestPlayerDestroySendsDestroyAndDropsAdapters(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	var fired bool
	p.AddEventAdapter(EventAdapterFunc(func(Event) { fired = true }))

	if err := p.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	ops := rec.ops(t)
	if len(ops) != 1 || ops[0] != "destroy" {
		t.Fatalf("expected a single destroy frame, got %v", ops)
	}
	p.triggerEvent(TrackPause{Player: p})
	if fired {
		t.Fatal("expected adapters to be dropped after Destroy")
	}
}

func TestPlayerSetVolumeRejectsOutOfRange(t *testing.T) {
	_, _, link, _ := newTestLink(t, "g1")
	p := link.Player()
	if err := p.SetVolume(-1); !isIllegal(err) {
		t.Fatalf("expected ErrIllegalAction for negative volume, got %v", err)
	}
	if err := p.SetVolume(151); !isIllegal(err) {
		t.Fatalf("expected ErrIllegalAction for volume over 150, got %v", err)
	}
	if err := p.SetVolume(150); err != nil {
		t.Fatalf("150 should be the accepted upper bound: %v", err)
	}
}

func TestPlayerSetVolumeIdempotent(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	if err := p.SetVolume(80); err != nil {
		t.Fatalf("first set volume: %v", err)
	}
	if err := p.SetVolume(80); err != nil {
		t.Fatalf("second set volume: %v", err)
	}
	frames := rec.frames(t)
	if len(frames) != 2 {
		t.Fatalf("expected 2 volume frames, got %d", len(frames))
	}
	if frames[0]["volume"] != frames[1]["volume"] {
		t.Fatalf("expected identical volume frames, got %v and %v", frames[0], frames[1])
	}
}

func TestPlayerSetEqClampsAndDropsOutOfRangeBands(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	err := p.SetEq([]EQBand{
		{Band: 0, Gain: 5.0},   // clamps to 1.0
		{Band: 1, Gain: -9.0},  // clamps to -0.25
		{Band: 20, Gain: 0.5},  // dropped, out of range
		{Band: -1, Gain: 0.5},  // dropped, out of range
	})
	if err != nil {
		t.Fatalf("set eq: %v", err)
	}

	frames := rec.frames(t)
	if len(frames) != 1 {
		t.Fatalf("expected exactly one equalizer frame, got %d", len(frames))
	}
	bands, ok := frames[0]["bands"].([]any)
	if !ok || len(bands) != 2 {
		t.Fatalf("expected 2 surviving bands, got %v", frames[0]["bands"])
	}
}

func TestPlayerSetEqAllBandsDroppedSendsNothing(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	if err := p.SetEq([]EQBand{{Band: 99, Gain: 1}}); err != nil {
		t.Fatalf("set eq: %v", err)
	}
	if ops := rec.ops(t); len(ops) != 0 {
		t.Fatalf("expected no frame sent when every band is dropped, got %v", ops)
	}
}

func TestPlayerSetEqIdempotent(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	bands := []EQBand{{Band: 0, Gain: 0.3}, {Band: 5, Gain: -0.1}}
	if err := p.SetEq(bands); err != nil {
		t.Fatalf("first set eq: %v", err)
	}
	if err := p.SetEq(bands); err != nil {
		t.Fatalf("second set eq: %v", err)
	}
	frames := rec.frames(t)
	if len(frames) != 2 {
		t.Fatalf("expected 2 equalizer frames, got %d", len(frames))
	}
}

func TestPlayerSetBassTouchesOnlyBandsZeroAndOne(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	if err := p.SetBass(BassModeExtreme); err != nil {
		t.Fatalf("set bass: %v", err)
	}
	frames := rec.frames(t)
	bands, _ := frames[0]["bands"].([]any)
	if len(bands) != 2 {
		t.Fatalf("expected a 2-band bass preset frame, got %v", bands)
	}
	gains := map[float64]float64{}
	for _, raw := range bands {
		b, _ := raw.(map[string]any)
		band, _ := b["band"].(float64)
		gain, _ := b["gain"].(float64)
		gains[band] = gain
	}
	if g := gains[0]; g != 1.0 {
		t.Fatalf("expected band 0 gain 1.0 for EXTREME, got %v", g)
	}
	if g := gains[1]; g != 0.75 {
		t.Fatalf("expected band 1 gain 0.75 for EXTREME, got %v", g)
	}
}

func TestPlayerSetBassPresetGains(t *testing.T) {
	cases := []struct {
		mode         BassMode
		band0, band1 float64
	}{
		{BassModeLow, 0.25, 0.15},
		{BassModeMedium, 0.50, 0.25},
		{BassModeHigh, 0.75, 0.50},
		{BassModeExtreme, 1.0, 0.75},
		{BassModeSicko, 1.0, 1.0},
	}
	for _, tc := range cases {
		_, _, link, rec := newTestLink(t, "g1")
		p := link.Player()
		if err := p.SetBass(tc.mode); err != nil {
			t.Fatalf("set bass %v: %v", tc.mode, err)
		}
		frames := rec.frames(t)
		bands, _ := frames[0]["bands"].([]any)
		gains := map[float64]float64{}
		for _, raw := range bands {
			b, _ := raw.(map[string]any)
			band, _ := b["band"].(float64)
			gain, _ := b["gain"].(float64)
			gains[band] = gain
		}
		if g := gains[0]; g != tc.band0 {
			t.Fatalf("mode %v: expected band 0 gain %v, got %v", tc.mode, tc.band0, g)
		}
		if g := gains[1]; g != tc.band1 {
			t.Fatalf("mode %v: expected band 1 gain %v, got %v", tc.mode, tc.band1, g)
		}
	}
}

func TestPlayerQueueSkipNext(t *testing.T) {
	_, _, link, rec := newTestLink(t, "g1")
	p := link.Player()
	if _, ok, _ := p.SkipNext(0, true); ok {
		t.Fatal("expected no track on an empty queue")
	}

	t1 := trackFixture(10*time.Second, true)
	t2 := trackFixture(20*time.Second, true)
	p.Enqueue(t1)
	p.Enqueue(t2)
	if p.QueueLen() != 2 {
		t.Fatalf("expected queue length 2, got %d", p.QueueLen())
	}

	track, ok, err := p.SkipNext(0, true)
	if err != nil || !ok || track != t1 {
		t.Fatalf("expected t1 first, got track=%v ok=%v err=%v", track, ok, err)
	}
	if p.QueueLen() != 1 {
		t.Fatalf("expected queue length 1 after dequeue, got %d", p.QueueLen())
	}
	if ops := rec.ops(t); len(ops) == 0 || ops[len(ops)-1] != "play" {
		t.Fatalf("expected SkipNext to issue a play frame, got %v", ops)
	}
}

func isIllegal(err error) bool {
	return err != nil && errors.Is(err, ErrIllegalAction)
}
