// Package caseio reads network cases from YAML or JSON files.
package caseio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridopt/core/errs"
	"github.com/kilianp07/gridopt/core/network"
)

// Format of a case file.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// BuiltinPrefix selects a bundled case instead of a file, as in builtin:case9.
const BuiltinPrefix = "builtin:"

var builtins = map[string]func() *network.Case{
	"case2": network.Case2,
	"case9": network.Case9,
}

// Builtins lists the bundled case names.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".json":
		return JSON, nil
	}
	return "", errs.Config(path, "unsupported case format %q", filepath.Ext(path))
}

// Load reads and validates a case. A missing name defaults to the file stem.
func Load(path string) (*network.Case, error) {
	if name, ok := strings.CutPrefix(path, BuiltinPrefix); ok {
		mk, found := builtins[name]
		if !found {
			return nil, errs.Config(name, "unknown builtin case, have %s", strings.Join(Builtins(), ", "))
		}
		return mk(), nil
	}
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open case: %w", err)
	}
	defer f.Close()
	c, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", path, err)
	}
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// Decode parses a case from r and validates it. Unknown fields are
// rejected.
func Decode(r io.Reader, format Format) (*network.Case, error) {
	var c network.Case
	switch format {
	case YAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return nil, errs.Config("case", "decode yaml: %v", err)
		}
	case JSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&c); err != nil {
			return nil, errs.Config("case", "decode json: %v", err)
		}
	default:
		return nil, errs.Config(string(format), "unsupported case format")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Encode writes c in the given format.
func Encode(w io.Writer, c *network.Case, format Format) error {
	switch format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(c); err != nil {
			return err
		}
		return enc.Close()
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	return errs.Config(string(format), "unsupported case format")
}

// Save writes c to path in the format of its extension.
func Save(path string, c *network.Case) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create case: %w", err)
	}
	if err := Encode(f, c, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode case: %w", err)
	}
	return f.Close()
}
