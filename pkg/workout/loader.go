package workout

import (
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed data/*.toml
var embeddedWorkouts embed.FS

// LoadEmbedded loads a built-in workout by ID.
func LoadEmbedded(id string) (*Definition, error) {
	data, err := embeddedWorkouts.ReadFile(fmt.Sprintf("data/%s.toml", id))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return Parse(data, SourceBuiltIn)
}

// ListEmbedded returns the IDs of the built-in workouts.
func ListEmbedded() ([]string, error) {
	entries, err := embeddedWorkouts.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("list embedded workouts: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".toml") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".toml"))
		}
	}
	return ids, nil
}

// LoadFromFile loads a custom workout from a TOML file.
func LoadFromFile(path string) (*Definition, error) {
	var def Definition
	md, err := toml.DecodeFile(path, &def)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidDefinition, path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	def.Source = path
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFromDirectory loads every *.toml file in dir, in name order.
func LoadFromDirectory(dir string) ([]*Definition, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("list workout files: %w", err)
	}
	sort.Strings(files)

	var defs []*Definition
	for _, file := range files {
		def, err := LoadFromFile(file)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Parse decodes and validates a definition from TOML bytes. Unknown keys
// are rejected.
func Parse(data []byte, source string) (*Definition, error) {
	var def Definition
	md, err := toml.Decode(string(data), &def)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	def.Source = source
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func checkUndecoded(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%w: unknown keys %s", ErrInvalidDefinition, strings.Join(keys, ", "))
}
