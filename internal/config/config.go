// Package config loads conversion jobs from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/vearutop/cubemap/internal/batch"
	"gopkg.in/yaml.v3"
)

// Config describes a conversion job. Empty values keep the defaults.
type Config struct {
	// Direction is "e2c" or "c2e".
	Direction string `toml:"direction" yaml:"direction"`
	// Input is a file, or a directory for batch runs.
	Input         string `toml:"input" yaml:"input"`
	SeparateAlpha bool   `toml:"separate_alpha" yaml:"separate_alpha"`
	OutputDir     string `toml:"output_dir" yaml:"output_dir"`
	// Format is the output format name, e.g. "exr".
	Format string `toml:"format" yaml:"format"`
	// Encoding overrides the input encoding: "linear" or "srgb".
	Encoding string `toml:"encoding" yaml:"encoding"`

	FaceSize int `toml:"face_size" yaml:"face_size"`
	Width    int `toml:"width" yaml:"width"`
	Height   int `toml:"height" yaml:"height"`

	JPEGQuality int  `toml:"jpeg_quality" yaml:"jpeg_quality"`
	HalfFloat   bool `toml:"half_float" yaml:"half_float"`

	// Workers bounds concurrently converted files in batch runs.
	Workers int `toml:"workers" yaml:"workers"`
	// ImageWorkers bounds row parallelism inside one image.
	ImageWorkers int `toml:"image_workers" yaml:"image_workers"`
	// Faces is a per-face file pattern with "%" for the face name.
	Faces string `toml:"faces" yaml:"faces"`
}

// Load reads a config file, picking the decoder by extension (.toml, .yaml, .yml).
// Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given syntax, "toml" or "yaml" (a leading dot is ignored).
func Parse(data []byte, syntax string) (Config, error) {
	var cfg Config
	switch strings.ToLower(strings.TrimPrefix(syntax, ".")) {
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, err
		}
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("unsupported config syntax %q", syntax)
	}
	return cfg, nil
}

// Job converts the config into a batch job.
func (c Config) Job() (batch.Job, error) {
	job := batch.Job{
		Input:         c.Input,
		SeparateAlpha: c.SeparateAlpha,
		OutputDir:     c.OutputDir,
		OutputFormat:  c.Format,
		InputEncoding: c.Encoding,
		FaceSize:      c.FaceSize,
		Width:         c.Width,
		Height:        c.Height,
		JPEGQuality:   c.JPEGQuality,
		HalfFloat:     c.HalfFloat,
		Workers:       c.ImageWorkers,
		FacesPattern:  c.Faces,
	}
	if c.Direction != "" {
		d, err := batch.ParseDirection(c.Direction)
		if err != nil {
			return batch.Job{}, err
		}
		job.Direction = d
	}
	if c.Encoding != "" {
		if _, err := batch.ParseEncoding(c.Encoding); err != nil {
			return batch.Job{}, err
		}
	}
	if c.FaceSize < 0 || c.Width < 0 || c.Height < 0 {
		return batch.Job{}, errors.New("sizes must not be negative")
	}
	return job, nil
}
