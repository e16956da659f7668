package model

// SourceKind says where a fact store was read from
type SourceKind string

const (
	SourceFile  SourceKind = "file"
	SourceURL   SourceKind = "url"
	SourceBytes SourceKind = "bytes" // Supplied in memory or on stdin
)

// FetchMeta describes how a fact store was retrieved. It travels next to the
// report, never inside it, so reports stay reproducible.
type FetchMeta struct {
	Kind         SourceKind        `json:"kind"`
	Location     string            `json:"location"`                // Final URL or cleaned path
	StatusCode   int               `json:"status_code,omitempty"`   // HTTP only
	ContentType  string            `json:"content_type,omitempty"`  // HTTP only
	LastModified string            `json:"last_modified,omitempty"` // HTTP header or file mtime (RFC 3339)
	ETag         string            `json:"etag,omitempty"`
	Size         int64             `json:"size"`
	Headers      map[string]string `json:"headers,omitempty"`
}
