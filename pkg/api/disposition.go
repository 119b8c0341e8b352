package api

import (
	"mime"
	"path"
	"regexp"
	"strings"
)

// looseFilename reads headers mime rejects, such as a missing disposition
// type or an unquoted name with spaces.
var looseFilename = regexp.MustCompile(`(?i)filename="?([^"]+)"?`)

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header. Missing or malformed headers give fallback.
func FilenameFromDisposition(header, fallback string) string {
	if strings.TrimSpace(header) == "" {
		return fallback
	}

	var name string
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	} else if m := looseFilename.FindStringSubmatch(header); m != nil {
		name = m[1]
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}

	// Never let the backend pick a directory.
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return fallback
	}
	return name
}
