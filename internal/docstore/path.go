package docstore

import (
	"fmt"
	"strings"
)

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Segments splits a path and validates it: no empty segments, no leading or
// trailing slash.
func Segments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalid)
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: malformed path %q", ErrInvalid, path)
		}
	}
	return parts, nil
}

// IsDocumentPath reports whether path addresses a single document
// (an even number of segments).
func IsDocumentPath(path string) bool {
	parts, err := Segments(path)
	return err == nil && len(parts)%2 == 0
}

// IsCollectionPath reports whether path addresses a collection.
func IsCollectionPath(path string) bool {
	parts, err := Segments(path)
	return err == nil && len(parts)%2 == 1
}

// Parent returns the collection path containing a document path.
func Parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Base returns the last segment of a path.
func Base(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
