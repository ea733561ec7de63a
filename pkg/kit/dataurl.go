package kit

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrBadDataURL = errors.New("malformed data url")

// DecodeDataURL decodes a base64 "data:<mime>;base64,<payload>" string as
// produced by canvas.toDataURL. Only base64 payloads are accepted.
func DecodeDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrBadDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrBadDataURL
	}
	mime, enc, ok := strings.Cut(meta, ";")
	if !ok || enc != "base64" {
		return "", nil, ErrBadDataURL
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, ErrBadDataURL
		}
	}
	if len(data) == 0 {
		return "", nil, ErrBadDataURL
	}
	return mime, data, nil
}
