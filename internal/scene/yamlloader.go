package scene

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the top-level structure of a scene YAML file.
//
// Example:
//
//	scene:
//	  name: "Demo room"
//	objects:
//	  - id: Cube1
//	    description: "A red cube that can walk and talk."
//	    position: {x: 0, y: 0, z: 0}
//	    actions: [move, talk, emote]
//	  - id: Cube2
//	    aliases: ["blue cube"]
//	    position: {x: 2, y: 0, z: 0}
type File struct {
	Scene   Meta     `yaml:"scene"`
	Objects []Object `yaml:"objects"`
}

// Meta holds descriptive scene metadata.
type Meta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Validate reports missing or duplicate object ids.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Objects))
	for i, o := range f.Objects {
		id := strings.TrimSpace(o.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("objects[%d]: id is required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("objects[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
	}
	return errors.Join(errs...)
}

// LoadFile reads and parses a scene YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open scene file %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("scene: parse scene file %q: %w", path, err)
	}
	return sf, nil
}

// LoadFromReader parses scene YAML from an [io.Reader] and validates it.
// The caller is responsible for closing the reader.
func LoadFromReader(r io.Reader) (*File, error) {
	var sf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&sf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scene: decode yaml: %w", err)
	}
	if err := sf.Validate(); err != nil {
		return nil, fmt.Errorf("scene: invalid scene: %w", err)
	}
	return &sf, nil
}

// Load reads path and replaces the contents of s with its objects.
func (s *Store) Load(path string) (*File, error) {
	sf, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.Replace(sf.Objects)
	return sf, nil
}
