package transcoder

import (
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"github.com/smashers-ai/smashers/internal/apperror"
)

// MaxVideoSize is the largest accepted source (2GB)
const MaxVideoSize int64 = 2 * 1024 * 1024 * 1024

// HeaderSize is how many leading bytes ValidateVideoFile needs for sniffing
const HeaderSize = 261

var allowedMIMETypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
}

var extensionMIMETypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
}

// ValidateVideoFile checks a source video's size and format and returns its
// MIME type. The content is sniffed first; the extension is the fallback.
func ValidateVideoFile(name string, size int64, head []byte) (string, error) {
	if name == "" && size == 0 {
		return "", apperror.New(apperror.KindInvalidSourceFormat, "No file selected")
	}
	if size > MaxVideoSize {
		return "", apperror.New(apperror.KindInvalidSourceFormat, "File size exceeds 2GB limit")
	}

	if len(head) > 0 {
		if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
			if allowedMIMETypes[kind.MIME.Value] {
				return kind.MIME.Value, nil
			}
		}
	}

	if mime, ok := extensionMIMETypes[strings.ToLower(filepath.Ext(name))]; ok {
		return mime, nil
	}

	return "", apperror.New(apperror.KindInvalidSourceFormat, "Invalid file format. Allowed: MP4, MOV, AVI, WebM")
}

// Extension returns the lowercased extension of name, defaulting to .mp4
func Extension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ".mp4"
	}
	return ext
}
