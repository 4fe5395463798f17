package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursor is the decoded form of a continuation token.
type cursor struct {
	Root       string `json:"r"`
	Generation uint64 `json:"g"`
	BatchIndex int    `json:"i"`
	LastKey    string `json:"k,omitempty"`
	Order      string `json:"o"`
}

func (c cursor) encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		// Only strings and integers; cannot fail.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(token string) (cursor, error) {
	var c cursor
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Root == "" || c.BatchIndex < 0 {
		return c, fmt.Errorf("%w: missing fields", ErrInvalidToken)
	}
	return c, nil
}
