package lavago

import (
	"encoding/json"
	"math"
	"time"
)

// NodeStats is the snapshot parsed from a node's periodic "stats" frame.
type NodeStats struct {
	Players        int
	PlayingPlayers int
	Uptime         time.Duration

	MemFree       int64
	MemUsed       int64
	MemAllocated  int64
	MemReservable int64

	CPUCores    int
	SystemLoad  float64
	WorkerLoad  float64

	// AvgFrameSent, AvgFrameNulled and AvgFrameDeficit are per-minute frame
	// counters. All three are -1 when the frame carried no frame stats.
	AvgFrameSent    int
	AvgFrameNulled  int
	AvgFrameDeficit int
}

type statsFrame struct {
	Op      string `json:"op"`
	Players int    `json:"players"`
	Playing int    `json:"playingPlayers"`
	Uptime  int64  `json:"uptime"`
	Memory  struct {
		Free       int64 `json:"free"`
		Used       int64 `json:"used"`
		Allocated  int64 `json:"allocated"`
		Reservable int64 `json:"reservable"`
	} `json:"memory"`
	CPU struct {
		Cores       int     `json:"cores"`
		SystemLoad  float64 `json:"systemLoad"`
		LavalinkLoad float64 `json:"lavalinkLoad"`
	} `json:"cpu"`
	FrameStats *struct {
		Sent    int `json:"sent"`
		Nulled  int `json:"nulled"`
		Deficit int `json:"deficit"`
	} `json:"frameStats"`
}

func parseNodeStats(data []byte) (*NodeStats, error) {
	var f statsFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	st := &NodeStats{
		Players:         f.Players,
		PlayingPlayers:  f.Playing,
		Uptime:          time.Duration(f.Uptime) * time.Millisecond,
		MemFree:         f.Memory.Free,
		MemUsed:         f.Memory.Used,
		MemAllocated:    f.Memory.Allocated,
		MemReservable:   f.Memory.Reservable,
		CPUCores:        f.CPU.Cores,
		SystemLoad:      f.CPU.SystemLoad,
		WorkerLoad:      f.CPU.LavalinkLoad,
		AvgFrameSent:    -1,
		AvgFrameNulled:  -1,
		AvgFrameDeficit: -1,
	}
	if f.FrameStats != nil {
		st.AvgFrameSent = f.FrameStats.Sent
		st.AvgFrameNulled = f.FrameStats.Nulled
		st.AvgFrameDeficit = f.FrameStats.Deficit
	}
	return st, nil
}

// bigPenalty stands in for +∞: an unavailable or stats-less node is never
// chosen over one with a finite score.
const bigPenalty = 9e30

// penalty computes the scalar load score for a node's current stats.
// Lower is better.
func penalty(available bool, stats *NodeStats) float64 {
	if !available || stats == nil {
		return bigPenalty
	}

	playerPenalty := float64(stats.PlayingPlayers)
	cpuPenalty := math.Pow(1.05, 100*stats.SystemLoad)*10 - 10

	var deficitFramePenalty, nullFramePenalty float64
	if stats.AvgFrameDeficit != -1 {
		deficitFramePenalty = math.Pow(1.03, 500*(float64(stats.AvgFrameDeficit)/3000))*600 - 600
		nullFramePenalty = math.Pow(1.03, 500*(float64(stats.AvgFrameNulled)/3000))*300 - 300
		nullFramePenalty *= 2
	}

	return playerPenalty + cpuPenalty + deficitFramePenalty + nullFramePenalty
}
