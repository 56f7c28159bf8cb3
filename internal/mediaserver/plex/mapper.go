package plex

import (
	"strconv"
	"time"

	"github.com/mmcdole/plexmirror/internal/domain"
)

// kindFromType converts a Plex metadata type string to a media kind
func kindFromType(t string) domain.MediaKind {
	switch t {
	case "movie":
		return domain.KindMovie
	case "clip":
		return domain.KindMusicVideo
	case "show":
		return domain.KindShow
	case "season":
		return domain.KindSeason
	case "episode":
		return domain.KindEpisode
	case "artist":
		return domain.KindArtist
	case "album":
		return domain.KindAlbum
	case "track":
		return domain.KindTrack
	default:
		return domain.KindUnknown
	}
}

// Plex numeric type codes, used in section filters and timeline notifications
const (
	typeMovie   = 1
	typeShow    = 2
	typeSeason  = 3
	typeEpisode = 4
	typeArtist  = 8
	typeAlbum   = 9
	typeTrack   = 10
	typeClip    = 12
)

// typeCode converts a media kind to its Plex numeric type code
func typeCode(k domain.MediaKind) int {
	switch k {
	case domain.KindMovie:
		return typeMovie
	case domain.KindShow:
		return typeShow
	case domain.KindSeason:
		return typeSeason
	case domain.KindEpisode:
		return typeEpisode
	case domain.KindArtist:
		return typeArtist
	case domain.KindAlbum:
		return typeAlbum
	case domain.KindTrack:
		return typeTrack
	case domain.KindMusicVideo:
		return typeClip
	default:
		return 0
	}
}

// kindFromTypeCode converts a Plex numeric type code back to a media kind
func kindFromTypeCode(code int) domain.MediaKind {
	switch code {
	case typeMovie:
		return domain.KindMovie
	case typeShow:
		return domain.KindShow
	case typeSeason:
		return domain.KindSeason
	case typeEpisode:
		return domain.KindEpisode
	case typeArtist:
		return domain.KindArtist
	case typeAlbum:
		return domain.KindAlbum
	case typeTrack:
		return domain.KindTrack
	case typeClip:
		return domain.KindMusicVideo
	default:
		return domain.KindUnknown
	}
}

// MapViews converts Plex library sections to domain views. Photo and other
// unsupported section types are dropped.
func MapViews(dirs []Directory) []domain.View {
	views := make([]domain.View, 0, len(dirs))
	for _, d := range dirs {
		var cat domain.MediaCategory
		switch d.Type {
		case "movie":
			cat = domain.CategoryMovies
		case "show":
			cat = domain.CategoryShows
		case "artist":
			cat = domain.CategoryMusic
		default:
			continue
		}
		views = append(views, domain.View{
			RemoteID:    d.Key,
			Name:        d.Title,
			Category:    cat,
			Tag:         d.Title,
			SyncEnabled: true,
		})
	}
	return views
}

// MapItem converts a single Plex metadata entry to a domain remote item
func MapItem(m Metadata) domain.RemoteItem {
	item := domain.RemoteItem{
		ID:         m.RatingKey,
		Kind:       kindFromType(m.Type),
		Title:      m.Title,
		ParentID:   m.ParentRatingKey,
		AddedAt:    m.AddedAt,
		UpdatedAt:  m.UpdatedAt,
		Duration:   time.Duration(m.Duration) * time.Millisecond,
		ViewOffset: time.Duration(m.ViewOffset) * time.Millisecond,
		Watched:    m.ViewCount > 0,
	}
	if m.LibrarySectionID != 0 {
		item.ViewID = strconv.Itoa(m.LibrarySectionID)
	}
	item.ViewName = m.LibrarySectionTitle
	if len(m.Media) > 0 && len(m.Media[0].Part) > 0 {
		item.File = m.Media[0].Part[0].File
	}
	return item
}

// MapItems converts Plex metadata entries to domain remote items
func MapItems(metadata []Metadata) []domain.RemoteItem {
	items := make([]domain.RemoteItem, 0, len(metadata))
	for _, m := range metadata {
		items = append(items, MapItem(m))
	}
	return items
}

// MapQueueItem converts a play queue metadata entry to a domain queue item
func MapQueueItem(m Metadata) domain.QueueItem {
	item := domain.QueueItem{
		RemoteID: m.RatingKey,
		Kind:     kindFromType(m.Type),
	}
	if m.PlayQueueItemID != 0 {
		item.PositionID = strconv.FormatInt(m.PlayQueueItemID, 10)
	}
	if len(m.Media) > 0 && len(m.Media[0].Part) > 0 {
		item.File = m.Media[0].Part[0].File
	}
	return item
}
