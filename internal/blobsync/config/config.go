// Package config holds the immutable run configuration. It is built once at
// startup and passed explicitly to the engine; there is no ambient state.
package config

import (
	"errors"
	"fmt"

	"github.com/openmined/blobsync/internal/hash"
	"github.com/openmined/blobsync/internal/utils"
)

const (
	DefaultConcurrency = 4
	DefaultAlgorithm   = hash.DefaultAlgorithm
)

type Config struct {
	// local side
	BaseDir string   `json:"base_dir"`
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`

	// remote side
	Bucket        string `json:"bucket"`
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	UseAccelerate bool   `json:"use_accelerate"`

	// behavior
	Concurrency  int    `json:"concurrency"`
	Algorithm    string `json:"algorithm"`
	Gzip         bool   `json:"gzip"`
	SnapshotPath string `json:"snapshot_path"`
}

// Validate resolves BaseDir to an absolute path and checks every knob.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return errors.New("base directory is required")
	}

	baseDir, err := utils.ResolvePath(c.BaseDir)
	if err != nil {
		return fmt.Errorf("invalid base directory: %w", err)
	}
	if !utils.DirExists(baseDir) {
		return fmt.Errorf("base directory '%s' does not exist", baseDir)
	}
	c.BaseDir = baseDir

	if c.Bucket == "" {
		return errors.New("bucket is required")
	}

	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	if c.Algorithm == "" {
		c.Algorithm = DefaultAlgorithm
	}
	if _, err := hash.New(c.Algorithm); err != nil {
		return err
	}

	if c.SnapshotPath != "" {
		snapshotPath, err := utils.ResolvePath(c.SnapshotPath)
		if err != nil {
			return fmt.Errorf("invalid snapshot path: %w", err)
		}
		c.SnapshotPath = snapshotPath
	}

	return nil
}
