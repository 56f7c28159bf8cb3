package domain

import "time"

// MediaCategory identifies a content category that syncs independently.
// Categories are processed strictly sequentially during a full sync.
type MediaCategory int

const (
	CategoryMovies MediaCategory = iota
	CategoryMusicVideos
	CategoryShows
	CategoryMusic
)

// String returns a human-readable representation of the category.
func (c MediaCategory) String() string {
	switch c {
	case CategoryMovies:
		return "movies"
	case CategoryMusicVideos:
		return "musicvideos"
	case CategoryShows:
		return "shows"
	case CategoryMusic:
		return "music"
	default:
		return "unknown"
	}
}

// Categories lists all categories in their fixed processing order.
func Categories() []MediaCategory {
	return []MediaCategory{CategoryMovies, CategoryMusicVideos, CategoryShows, CategoryMusic}
}

// MediaKind distinguishes individual item types within a category.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindMovie
	KindMusicVideo
	KindShow
	KindSeason
	KindEpisode
	KindArtist
	KindAlbum
	KindTrack
)

// String returns a human-readable representation of the kind.
func (k MediaKind) String() string {
	switch k {
	case KindMovie:
		return "movie"
	case KindMusicVideo:
		return "musicvideo"
	case KindShow:
		return "show"
	case KindSeason:
		return "season"
	case KindEpisode:
		return "episode"
	case KindArtist:
		return "artist"
	case KindAlbum:
		return "album"
	case KindTrack:
		return "track"
	default:
		return "unknown"
	}
}

// Category returns the content category a kind belongs to.
func (k MediaKind) Category() MediaCategory {
	switch k {
	case KindMusicVideo:
		return CategoryMusicVideos
	case KindShow, KindSeason, KindEpisode:
		return CategoryShows
	case KindArtist, KindAlbum, KindTrack:
		return CategoryMusic
	default:
		return CategoryMovies
	}
}

// RemoteItem is a media record as enumerated or resolved from the remote
// catalog. Section enumerations carry only the cheap fields (ID, UpdatedAt,
// Title); a record resolved through the Metadata Provider is fully populated.
type RemoteItem struct {
	ID         string        // Remote unique identifier (ratingKey)
	Kind       MediaKind     // movie, episode, track, ...
	Title      string        // Display title
	ViewID     string        // Remote library section ID
	ViewName   string        // Remote library section title
	ParentID   string        // Parent record ID (show for episode, album for track)
	File       string        // Path to the media file, if exposed
	AddedAt    int64         // Unix timestamp when added remotely
	UpdatedAt  int64         // Unix timestamp when last updated remotely
	Duration   time.Duration // Total runtime
	ViewOffset time.Duration // Resume position
	Watched    bool          // Whether the remote side marks it played
}

// Fingerprint returns the cheap change-detection value for the item,
// derived from its remote id and last-modified timestamp.
func (r RemoteItem) Fingerprint() string {
	return Fingerprint(r.ID, r.UpdatedAt)
}

// ItemRef maps a remote catalog item to its local store identity.
// Exactly one reference exists per remote id.
type ItemRef struct {
	RemoteID      string        `json:"remoteID"`
	Category      MediaCategory `json:"category"`
	Kind          MediaKind     `json:"kind"`
	LocalID       int64         `json:"localID"`
	LocalType     string        `json:"localType"`
	FileID        int64         `json:"fileID,omitempty"`
	ParentID      string        `json:"parentID,omitempty"`
	ViewID        string        `json:"viewID"`
	Tag           string        `json:"tag,omitempty"`
	Fingerprint   string        `json:"fingerprint"`
	ArtworkSynced bool          `json:"artworkSynced"`
	Watched       bool          `json:"watched,omitempty"`
	ViewOffset    time.Duration `json:"viewOffset,omitempty"`
}

// View is a named content collection mirroring a remote library section.
type View struct {
	RemoteID    string        `json:"remoteID"`
	Name        string        `json:"name"`
	Category    MediaCategory `json:"category"`
	Tag         string        `json:"tag"`
	SyncEnabled bool          `json:"syncEnabled"`
}

// ChangeRecord is one proposed mutation produced by the diff engine and
// consumed exactly once by the fetch pipeline.
type ChangeRecord struct {
	RemoteID      string        // Remote id to resolve and apply
	Category      MediaCategory // Content category
	Kind          MediaKind     // Apply-method selector
	ViewID        string        // Target view
	ViewName      string        // Target view display name
	Title         string        // Display title, for logging
	FetchChildren bool          // Resolve children individually too
}

// FetchResult is a fully materialized ChangeRecord: the resolved remote
// record plus, if requested, its resolved children. ChildrenResolved is set
// only when the child enumeration itself succeeded, so a failed enumeration
// is never mistaken for an empty one.
type FetchResult struct {
	Record           ChangeRecord
	Item             RemoteItem
	Children         []RemoteItem
	ChildrenResolved bool
}

// PlaybackState carries the playback fields (watched flag, resume position)
// applied in bulk during the additions pass of a full sync.
type PlaybackState struct {
	RemoteID   string
	Watched    bool
	ViewOffset time.Duration
}
