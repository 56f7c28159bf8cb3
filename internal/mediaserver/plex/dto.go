package plex

// MediaContainer is the root container for Plex API responses
type MediaContainer struct {
	Size                int         `json:"size"`
	TotalSize           int         `json:"totalSize,omitempty"`
	Offset              int         `json:"offset,omitempty"`
	Identifier          string      `json:"identifier,omitempty"`
	LibrarySectionID    int         `json:"librarySectionID,omitempty"`
	LibrarySectionTitle string      `json:"librarySectionTitle,omitempty"`
	Directory           []Directory `json:"Directory,omitempty"`
	Metadata            []Metadata  `json:"Metadata,omitempty"`

	// Play queue fields
	PlayQueueID             int64 `json:"playQueueID,omitempty"`
	PlayQueueVersion        int   `json:"playQueueVersion,omitempty"`
	PlayQueueSelectedItemID int64 `json:"playQueueSelectedItemID,omitempty"`
	PlayQueueTotalCount     int   `json:"playQueueTotalCount,omitempty"`
}

// Directory represents a library section
type Directory struct {
	Key              string `json:"key"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	UUID             string `json:"uuid,omitempty"`
	UpdatedAt        int64  `json:"updatedAt,omitempty"`
	CreatedAt        int64  `json:"createdAt,omitempty"`
	ContentChangedAt int64  `json:"contentChangedAt,omitempty"`
}

// Metadata represents a media item (movie, show, season, episode, artist,
// album, track or play queue entry)
type Metadata struct {
	RatingKey            string  `json:"ratingKey"`
	Key                  string  `json:"key"`
	ParentRatingKey      string  `json:"parentRatingKey,omitempty"`
	GrandparentRatingKey string  `json:"grandparentRatingKey,omitempty"`
	Type                 string  `json:"type"`
	Title                string  `json:"title"`
	ParentTitle          string  `json:"parentTitle,omitempty"`
	GrandparentTitle     string  `json:"grandparentTitle,omitempty"`
	Index                int     `json:"index,omitempty"`
	ParentIndex          int     `json:"parentIndex,omitempty"`
	ViewOffset           int     `json:"viewOffset,omitempty"`
	ViewCount            int     `json:"viewCount,omitempty"`
	LastViewedAt         int64   `json:"lastViewedAt,omitempty"`
	Duration             int     `json:"duration,omitempty"`
	AddedAt              int64   `json:"addedAt,omitempty"`
	UpdatedAt            int64   `json:"updatedAt,omitempty"`
	LibrarySectionID     int     `json:"librarySectionID,omitempty"`
	LibrarySectionKey    string  `json:"librarySectionKey,omitempty"`
	LibrarySectionTitle  string  `json:"librarySectionTitle,omitempty"`
	PlayQueueItemID      int64   `json:"playQueueItemID,omitempty"`
	Media                []Media `json:"Media,omitempty"`
}

// Media represents media stream information
type Media struct {
	ID       int    `json:"id"`
	Duration int    `json:"duration,omitempty"`
	Part     []Part `json:"Part,omitempty"`
}

// Part represents a media file part
type Part struct {
	ID       int    `json:"id"`
	Key      string `json:"key"`
	Duration int    `json:"duration,omitempty"`
	File     string `json:"file,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// APIResponse wraps the MediaContainer for JSON unmarshaling
type APIResponse struct {
	MediaContainer MediaContainer `json:"MediaContainer"`
}

// NotificationContainer is the envelope of a websocket notification
type NotificationContainer struct {
	Type            string          `json:"type"`
	Size            int             `json:"size,omitempty"`
	TimelineEntries []TimelineEntry `json:"TimelineEntry,omitempty"`
}

// TimelineEntry is one library timeline notification
type TimelineEntry struct {
	Identifier string `json:"identifier"`
	ItemID     int64  `json:"itemID"`
	SectionID  int64  `json:"sectionID,omitempty"`
	Type       int    `json:"type"`
	State      int    `json:"state"`
	UpdatedAt  int64  `json:"updatedAt,omitempty"`
	Title      string `json:"title,omitempty"`
}

// NotificationEnvelope wraps the NotificationContainer for JSON unmarshaling
type NotificationEnvelope struct {
	NotificationContainer NotificationContainer `json:"NotificationContainer"`
}
