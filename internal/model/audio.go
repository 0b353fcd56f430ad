package model

import "strings"

// audioFormats maps accepted file extensions to their MIME type.
var audioFormats = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".webm": "audio/webm",
	".flac": "audio/flac",
}

// AudioMimeType returns the MIME type for a file extension and whether it is accepted.
func AudioMimeType(ext string) (string, bool) {
	mime, ok := audioFormats[strings.ToLower(ext)]
	return mime, ok
}

// AudioExtension returns the extension registered for a MIME type, or "".
func AudioExtension(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	for ext, m := range audioFormats {
		if m == mimeType {
			return ext
		}
	}
	return ""
}
