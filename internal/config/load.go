package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// LoadOptions controls how a config file is loaded.
type LoadOptions struct {
	// AllowUnknownFields is passed through to validation, which does not
	// consult it: whatever its value, the HCL decoder rejects unrecognized
	// attributes and the JSON decoder ignores unrecognized fields.
	AllowUnknownFields bool
}

// DefaultLoadOptions returns the defaults used by "start"/"reload".
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{AllowUnknownFields: false}
}

// LoadResult carries the parsed config plus validation warnings.
type LoadResult struct {
	Config   *Config
	Warnings []string
}

// LoadFile loads and validates a config file, applying defaults.
func LoadFile(path string) (*Config, error) {
	res, err := LoadFileWithOptions(path, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadFileWithOptions loads path (HCL, falling back to JSON by extension or
// content sniff), applies defaults, and validates limits (spec §6).
func LoadFileWithOptions(path string, opts LoadOptions) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "read config %s", path)
	}

	var cfg Config
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "parse json config")
		}
	default:
		if err := decodeHCL(data, path, &cfg); err != nil {
			// Fall back to JSON for a file with a non-.hcl extension that
			// still happens to be JSON.
			if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
				return nil, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "parse config")
			}
		}
	}

	if !strings.Contains(string(data), "foreground") {
		cfg.Foreground = true
	}

	applyDefaults(&cfg)

	warnings, err := validate(&cfg, opts)
	if err != nil {
		return nil, err
	}

	return &LoadResult{Config: &cfg, Warnings: warnings}, nil
}

func decodeHCL(data []byte, path string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return fmt.Errorf("hcl parse: %w", diags)
	}

	diags = gohcl.DecodeBody(file.Body, nil, cfg)
	if diags.HasErrors() {
		return fmt.Errorf("hcl decode: %w", diags)
	}
	return nil
}
