package formats

import (
	"encoding/json"
	"fmt"
)

// JSON writes indented output with a trailing newline
var JSON = &Codec{
	Name:       "json",
	Extensions: []string{".json"},
	Marshal: func(v interface{}) ([]byte, error) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	},
	Unmarshal: json.Unmarshal,
}

func init() {
	if err := Register(JSON); err != nil {
		panic(fmt.Sprintf("failed to register JSON format: %v", err))
	}
}
