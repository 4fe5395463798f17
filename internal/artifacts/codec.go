package artifacts

import "encoding/json"

// JSONCodec stores artifacts as JSON.
type JSONCodec[A any] struct{}

func (JSONCodec[A]) Encode(v A) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec[A]) Decode(data []byte) (A, error) {
	var v A
	err := json.Unmarshal(data, &v)
	return v, err
}
