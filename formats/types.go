package formats

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Codec defines how documents and data tables are serialized and deserialized
type Codec struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Extensions lists the file extensions including the dot (e.g., ".json", ".yml")
	Extensions []string

	// Marshal converts a value into the formatted bytes
	Marshal func(v interface{}) ([]byte, error)

	// Unmarshal parses formatted bytes into v
	Unmarshal func(data []byte, v interface{}) error
}

// CompressedSuffix marks a file whose payload is zstd-compressed
const CompressedSuffix = ".zst"

// registry holds all available codecs
var registry = make(map[string]*Codec)

// Register adds a new codec to the registry
func Register(codec *Codec) error {
	// Validate codec name (alphanumeric, dashes, underscores, lowercase)
	if !isValidFormatName(codec.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", codec.Name)
	}

	// Normalize extensions
	for i, ext := range codec.Extensions {
		if !strings.HasPrefix(ext, ".") {
			codec.Extensions[i] = "." + ext
		}
	}

	if _, exists := registry[codec.Name]; exists {
		return fmt.Errorf("format %q already registered", codec.Name)
	}

	registry[codec.Name] = codec
	return nil
}

// Get returns a codec by name
func Get(name string) (*Codec, error) {
	codec, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return codec, nil
}

// List returns all registered format names, sorted
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForPath picks the codec for a file path by extension. A trailing ".zst"
// is stripped first and reported through compressed.
func ForPath(path string) (codec *Codec, compressed bool, err error) {
	name := strings.ToLower(path)
	if strings.HasSuffix(name, CompressedSuffix) {
		compressed = true
		name = strings.TrimSuffix(name, CompressedSuffix)
	}

	ext := filepath.Ext(name)
	if ext == "" {
		return nil, compressed, fmt.Errorf("cannot infer format of %q: no extension", path)
	}

	for _, c := range registry {
		for _, e := range c.Extensions {
			if e == ext {
				return c, compressed, nil
			}
		}
	}
	return nil, compressed, fmt.Errorf("no format registered for extension %q", ext)
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
