package formats

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML format, two-space indented
var YAML = &Codec{
	Name:       "yaml",
	Extensions: []string{".yaml", ".yml"},
	Marshal: func(v interface{}) ([]byte, error) {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	},
	Unmarshal: yaml.Unmarshal,
}

func init() {
	if err := Register(YAML); err != nil {
		panic(fmt.Sprintf("failed to register YAML format: %v", err))
	}
}
