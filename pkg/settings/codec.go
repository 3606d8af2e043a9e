package settings

import "encoding/json"

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
