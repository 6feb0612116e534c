package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	errs "github.com/zeroknots/lazyaccount/models/errors"
)

const DefaultProfile = "default"

// ProfileFile is the persisted set of named configuration profiles. Each
// profile holds only the keys that were explicitly set.
type ProfileFile struct {
	Profiles map[string]map[string]string `yaml:"profiles"`
}

// DefaultProfilePath is `<user config dir>/lazyaccount/config.yaml`.
func DefaultProfilePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "lazyaccount.yaml")
	}
	return filepath.Join(dir, "lazyaccount", "config.yaml")
}

// LoadProfileFile reads a profile file. A missing file is an empty one.
func LoadProfileFile(path string) (*ProfileFile, error) {
	file := &ProfileFile{Profiles: map[string]map[string]string{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return file, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("could not parse YAML from %s: %w", path, err)
	}
	if file.Profiles == nil {
		file.Profiles = map[string]map[string]string{}
	}

	return file, nil
}

func (f *ProfileFile) Save(path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("could not encode profiles: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("could not write file %s: %w", path, err)
	}
	return nil
}

// Values returns the explicitly set keys of a profile.
func (f *ProfileFile) Values(profile string) map[string]string {
	values := map[string]string{}
	for k, v := range f.Profiles[profile] {
		values[k] = v
	}
	return values
}

// Set stores a key after checking it parses.
func (f *ProfileFile) Set(profile, key, value string) error {
	candidate := Default()
	if err := candidate.Set(key, value); err != nil {
		return err
	}

	if f.Profiles[profile] == nil {
		f.Profiles[profile] = map[string]string{}
	}
	f.Profiles[profile][key] = value
	return nil
}

// Unset removes a key, dropping the profile once it is empty.
func (f *ProfileFile) Unset(profile, key string) error {
	if _, ok := settings[key]; !ok {
		return fmt.Errorf("%w: unknown config key %q", errs.ErrInvalid, key)
	}

	delete(f.Profiles[profile], key)
	if len(f.Profiles[profile]) == 0 {
		delete(f.Profiles, profile)
	}
	return nil
}

func (f *ProfileFile) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for name := range f.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
