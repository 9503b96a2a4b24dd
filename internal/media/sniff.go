package media

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/yoockh/sagecreek/internal/utils"
)

var allowedExt = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",
}

// detected types that are acceptable containers for the allowed extensions
var allowedMIME = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/x-m4v":     true,
}

const UnsupportedMessage = "Unsupported file type. Please upload an MP4, MOV, or AVI video."

// Ext returns the lower-cased extension of name if it is an accepted video type.
func Ext(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExt[ext]; !ok {
		return "", utils.E(utils.CodeUnsupportedMedia, "media.Ext", UnsupportedMessage, nil)
	}
	return ext, nil
}

// MIMEForExt is the MIME type declared to the vendor for an accepted extension.
func MIMEForExt(ext string) string {
	return allowedExt[strings.ToLower(ext)]
}

func Sniff(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", utils.E(utils.CodeInternal, "media.Sniff", "failed to inspect uploaded video", err)
	}
	return m.String(), nil
}

// AllowedVideo reports whether the sniffed content and the extension agree on an accepted video.
func AllowedVideo(mime, ext string) bool {
	if _, ok := allowedExt[strings.ToLower(ext)]; !ok {
		return false
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return allowedMIME[strings.TrimSpace(strings.ToLower(mime))]
}
