package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var ErrNotFound = errors.New("catalog: lecture not found")

// Lecture is the catalog metadata the gateway consumes: it only ever
// reads the origin media URL, the rest is passed through to clients.
type Lecture struct {
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	VideoURL  string `json:"videoUrl"`
}

// Store is the catalog collaborator. The gateway treats it as an external
// system and consumes only per-lecture origin URLs for minting.
type Store interface {
	GetLecture(ctx context.Context, batchID, subjectID, topicID string, index int) (Lecture, error)
}

// Qualities are the variant renditions offered per lecture, best first.
// Origin URLs are published at 720p and the other renditions live in
// sibling quality directories.
var Qualities = []int{720, 480, 360, 240}

const (
	MimeManifest = "application/vnd.apple.mpegurl"
	MimeSegment  = "video/MP2T"
)

// VariantURL maps a 720p origin URL onto another quality rendition by
// substituting the quality directory.
func VariantURL(videoURL string, quality int) string {
	return strings.Replace(videoURL, "/hls/720/", "/hls/"+strconv.Itoa(quality)+"/", 1)
}

// MimeType derives the media type from the URL's file extension.
func MimeType(videoURL string) string {
	u := videoURL
	if idx := strings.IndexAny(u, "?#"); idx >= 0 {
		u = u[:idx]
	}
	if strings.HasSuffix(u, ".m3u8") {
		return MimeManifest
	}
	return MimeSegment
}
