package pcm

import "encoding/base64"

// EncodeBase64 returns the standard base64 encoding of data. It is total:
// empty input yields the empty string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 inverts [EncodeBase64]. Malformed input yields a
// [*DecodeError] wrapping the base64 error.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Len: len(s), Reason: "invalid base64", Err: err}
	}
	return data, nil
}
