package analysis

import (
	"github.com/smashers-ai/smashers/internal/timeutil"
	"github.com/smashers-ai/smashers/pkg/models"
)

// VideoSource is a FileSource or a LinkSource
type VideoSource interface {
	// Type returns models.SourceTypeFile or models.SourceTypeYouTube
	Type() string
	isVideoSource()
}

// FileSource is a local video that must be uploaded before analysis
type FileSource struct {
	Path        string
	MIMEType    string // detected from content when empty
	Size        int64
	DisplayName string
}

func (FileSource) Type() string   { return models.SourceTypeFile }
func (FileSource) isVideoSource() {}

// LinkSource is a YouTube video the provider can fetch itself
type LinkSource struct {
	ID     string
	RawURL string
}

func (LinkSource) Type() string   { return models.SourceTypeYouTube }
func (LinkSource) isVideoSource() {}

// NewLinkSource validates a YouTube URL
func NewLinkSource(url string) (LinkSource, error) {
	id, err := timeutil.ValidateYouTubeURL(url)
	if err != nil {
		return LinkSource{}, err
	}
	return LinkSource{ID: id, RawURL: url}, nil
}

// Descriptor records the source on a history entry
func Descriptor(src VideoSource) models.VideoSourceDescriptor {
	switch s := src.(type) {
	case FileSource:
		return models.VideoSourceDescriptor{Type: models.SourceTypeFile, FileName: s.DisplayName}
	case LinkSource:
		return models.VideoSourceDescriptor{Type: models.SourceTypeYouTube, VideoID: s.ID}
	default:
		return models.VideoSourceDescriptor{}
	}
}
