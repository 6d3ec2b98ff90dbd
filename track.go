package lavago

import "time"

// AudioTrack is an immutable descriptor of one playable item, as returned
// by a node's REST track lookup and passed back to the node verbatim on
// Play.
type AudioTrack struct {
	// Encoded is the opaque blob a node uses to reconstruct playback state.
	Encoded string `json:"track"`
	// Stream is true when the track has no fixed duration.
	Stream bool
	// URI is the source URI, if any.
	URI string
	// Title of the track.
	Title string
	// Author of the track.
	Author string
	// Identifier is the source-specific track id.
	Identifier string
	// Seekable is whether Seek is permitted on this track.
	Seekable bool
	// Duration is the total track length.
	Duration time.Duration
	// UserData is an opaque slot for embedder-attached payloads. lavago
	// never reads or writes it after construction.
	UserData any
}

// trackWire is the wire shape of one entry in a REST loadtracks response.
type trackWire struct {
	Track string `json:"track"`
	Info  struct {
		IsStream   bool   `json:"isStream"`
		URI        string `json:"uri"`
		Title      string `json:"title"`
		Author     string `json:"author"`
		Identifier string `json:"identifier"`
		IsSeekable bool   `json:"isSeekable"`
		Length     int64  `json:"length"`
	} `json:"info"`
}

func (w trackWire) toAudioTrack() *AudioTrack {
	return &AudioTrack{
		Encoded:    w.Track,
		Stream:     w.Info.IsStream,
		URI:        w.Info.URI,
		Title:      w.Info.Title,
		Author:     w.Info.Author,
		Identifier: w.Info.Identifier,
		Seekable:   w.Info.IsSeekable,
		Duration:   time.Duration(w.Info.Length) * time.Millisecond,
	}
}

// LoadType tags the result of a track query.
type LoadType int

const (
	LoadTypeNoMatches LoadType = iota - 2
	LoadTypeLoadFailed
	LoadTypeUnknown
	LoadTypeTrackLoaded
	LoadTypePlaylistLoaded
	LoadTypeSearchResult
)

func (lt LoadType) String() string {
	switch lt {
	case LoadTypeNoMatches:
		return "NO_MATCHES"
	case LoadTypeLoadFailed:
		return "LOAD_FAILED"
	case LoadTypeUnknown:
		return "UNKNOWN"
	case LoadTypeTrackLoaded:
		return "TRACK_LOADED"
	case LoadTypePlaylistLoaded:
		return "PLAYLIST_LOADED"
	case LoadTypeSearchResult:
		return "SEARCH_RESULT"
	default:
		return "UNKNOWN"
	}
}

func parseLoadType(s string) LoadType {
	switch s {
	case "NO_MATCHES":
		return LoadTypeNoMatches
	case "LOAD_FAILED":
		return LoadTypeLoadFailed
	case "TRACK_LOADED":
		return LoadTypeTrackLoaded
	case "PLAYLIST_LOADED":
		return LoadTypePlaylistLoaded
	case "SEARCH_RESULT":
		return LoadTypeSearchResult
	default:
		return LoadTypeUnknown
	}
}

// AudioTrackPlaylist is the decoded result of a track query.
type AudioTrackPlaylist struct {
	LoadType LoadType
	// PlaylistName is set only when LoadType is PLAYLIST_LOADED.
	PlaylistName string
	// SelectedTrack is the index of the selected track within Tracks, set
	// only when LoadType is PLAYLIST_LOADED.
	SelectedTrack int
	Tracks        []*AudioTrack
}

// IsPlaylist reports whether this result is a multi-track playlist.
func (p *AudioTrackPlaylist) IsPlaylist() bool {
	return p.LoadType == LoadTypePlaylistLoaded && len(p.Tracks) > 1
}

// IsEmpty reports whether this result carries no usable tracks.
func (p *AudioTrackPlaylist) IsEmpty() bool {
	return p.LoadType < 0 || len(p.Tracks) == 0
}

// searchResultWire is the raw REST /loadtracks response shape.
type searchResultWire struct {
	LoadType     string `json:"loadType"`
	PlaylistInfo struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"playlistInfo"`
	Tracks []trackWire `json:"tracks"`
}

func (w searchResultWire) toPlaylist() *AudioTrackPlaylist {
	tracks := make([]*AudioTrack, 0, len(w.Tracks))
	for _, t := range w.Tracks {
		tracks = append(tracks, t.toAudioTrack())
	}
	return &AudioTrackPlaylist{
		LoadType:      parseLoadType(w.LoadType),
		PlaylistName:  w.PlaylistInfo.Name,
		SelectedTrack: w.PlaylistInfo.SelectedTrack,
		Tracks:        tracks,
	}
}
