// Package typecheck models the type-checker configuration fragment the
// harness materializes into a project environment.
//
// The fragment enables the target library's checker plugin in strict
// mode. The options here are recognized and validated, then rendered for
// the external tool; nothing in this module interprets them.
package typecheck

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PluginOptions are the plugin's strict-mode switches.
type PluginOptions struct {
	// InitForbidExtra forbids extra arguments to generated initializers.
	InitForbidExtra bool `toml:"init_forbid_extra"`
	// InitTyped types generated initializer arguments instead of Any.
	InitTyped bool `toml:"init_typed"`
	// WarnRequiredDynamicAliases warns on required fields with dynamic
	// aliases.
	WarnRequiredDynamicAliases bool `toml:"warn_required_dynamic_aliases"`
	// WarnUntypedFields warns on fields with no annotation.
	WarnUntypedFields bool `toml:"warn_untyped_fields"`
}

// Fragment is the checker configuration written into a unit environment.
type Fragment struct {
	// Plugins lists checker plugins to load.
	Plugins []string `toml:"plugins"`

	// FollowImports controls how imported modules are analyzed.
	FollowImports string `toml:"follow_imports"`

	// StrictOptional enables strict None checking.
	StrictOptional bool `toml:"strict_optional"`

	Plugin PluginOptions `toml:"plugin"`
}

// validFollowImports are the checker's recognized modes.
var validFollowImports = map[string]bool{
	"normal": true,
	"silent": true,
	"skip":   true,
	"error":  true,
}

// Strict returns the fragment for plugin-enabled strict mode.
func Strict(plugin string) Fragment {
	return Fragment{
		Plugins:        []string{plugin},
		FollowImports:  "silent",
		StrictOptional: true,
		Plugin: PluginOptions{
			InitForbidExtra:            true,
			InitTyped:                  true,
			WarnRequiredDynamicAliases: true,
			WarnUntypedFields:          true,
		},
	}
}

// Validate checks option values against the recognized sets.
func (f Fragment) Validate() error {
	if len(f.Plugins) == 0 {
		return fmt.Errorf("at least one plugin is required")
	}
	if !validFollowImports[f.FollowImports] {
		return fmt.Errorf("unrecognized follow_imports mode %q", f.FollowImports)
	}
	return nil
}

// Render encodes the fragment as TOML under a [typecheck] table.
func (f Fragment) Render() (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(map[string]Fragment{"typecheck": f}); err != nil {
		return "", fmt.Errorf("encode fragment: %w", err)
	}
	return buf.String(), nil
}

// WriteTo materializes the fragment into a unit environment directory.
func (f Fragment) WriteTo(dir string) error {
	body, err := f.Render()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "typecheck.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	return nil
}

// Parse decodes and validates a fragment from TOML.
func Parse(body string) (Fragment, error) {
	var wrapper struct {
		Typecheck Fragment `toml:"typecheck"`
	}
	if _, err := toml.Decode(body, &wrapper); err != nil {
		return Fragment{}, fmt.Errorf("parse fragment: %w", err)
	}
	if err := wrapper.Typecheck.Validate(); err != nil {
		return Fragment{}, err
	}
	return wrapper.Typecheck, nil
}
