package store

import "strings"

// Join builds a slash separated store path, ignoring empty segments.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Parent returns the collection path of a document path.
func Parent(docPath string) string {
	docPath = strings.Trim(docPath, "/")
	if i := strings.LastIndex(docPath, "/"); i >= 0 {
		return docPath[:i]
	}
	return ""
}

// Base returns the last segment of a path.
func Base(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
