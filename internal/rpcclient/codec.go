package rpcclient

import (
	"encoding/base64"
	"fmt"
)

// decodeBase64Data decodes a Solana `[data, encoding]` tuple, the wire shape
// returned for "encoding": "base64" account data.
func decodeBase64Data(pair [2]string) ([]byte, error) {
	if pair[1] != "base64" {
		return nil, fmt.Errorf("unexpected account data encoding %q", pair[1])
	}
	data, err := base64.StdEncoding.DecodeString(pair[0])
	if err != nil {
		return nil, fmt.Errorf("decode base64 account data: %w", err)
	}
	return data, nil
}
