package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"forumbump/internal/components/telemetry"
)

// Source loads and persists the bump schedule.
type Source interface {
	Load() ([]byte, error)
	Save(cfg Configuration) error
}

// FileSource is a Source backed by a single json/json5 file.
type FileSource struct {
	Path string
}

func NewFileSource(path string) FileSource {
	return FileSource{Path: path}
}

func (f FileSource) Load() ([]byte, error) {
	contents, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s does not exist: %w", f.Path, err)
	}
	return contents, err
}

// Save writes the configuration as indented json, replacing the file atomically.
func (f FileSource) Save(cfg Configuration) error {
	contents, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(append(contents, '\n'))
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Load reads and validates a configuration from a source.
func Load(tel telemetry.API, source Source) (Configuration, error) {
	contents, err := source.Load()
	if err != nil {
		return Configuration{}, err
	}
	return Validate(tel, contents)
}
