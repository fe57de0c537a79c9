// ==============================================================================================
// FILE: host/config.go
// ==============================================================================================
// PACKAGE: host
// PURPOSE: Loads Config from a YAML file, for a host program that wants its allocation caps,
//          GC factor, recursion limit, and import path set from a deploy-time config file rather
//          than wired up in Go source.
// ==============================================================================================

package host

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config's field names in lower_snake_case, the
// convention the rest of the retrieved corpus's YAML-configured tools use.
type fileConfig struct {
	MaxAllocs      int      `yaml:"max_allocs"`
	GCFactor       float64  `yaml:"gc_factor"`
	RecursionLimit int      `yaml:"recursion_limit"`
	ImportPath     []string `yaml:"import_path"`
}

// LoadConfig reads path as YAML and returns a Config with Print left nil
// (the caller sets it, since an io.Writer has no YAML representation) and
// Logger left nil (defaulted by NewContext).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("host: reading config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("host: parsing config %s: %w", path, err)
	}
	return Config{
		MaxAllocs:      fc.MaxAllocs,
		GCFactor:       fc.GCFactor,
		RecursionLimit: fc.RecursionLimit,
		ImportPath:     fc.ImportPath,
	}, nil
}
