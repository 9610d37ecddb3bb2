package fingerprint

import (
	"encoding/base64"
	"encoding/hex"
)

// Record is the content identity of one file at one point in time. ETag is
// the quoted lowercase hex digest (the quoting matches the remote store's
// etag convention), ContentMD5 the same digest base64-encoded for the
// Content-MD5 integrity header.
type Record struct {
	ETag       string `json:"etag"`
	ContentMD5 string `json:"contentMD5"`
}

// Map holds fingerprint records keyed by forward-slash relative path.
type Map map[string]*Record

func NewRecord(digest []byte) *Record {
	return &Record{
		ETag:       `"` + hex.EncodeToString(digest) + `"`,
		ContentMD5: base64.StdEncoding.EncodeToString(digest),
	}
}
