// Package config loads application manifests from YAML.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reglet-dev/egress/internal/domain/entities"
)

// SupportedManifestVersions is the manifest_version range this loader reads.
const SupportedManifestVersions = ">= 1.0.0, < 2.0.0"

//go:embed manifest.schema.json
var manifestSchema []byte

// ManifestLoader reads and validates application manifests.
type ManifestLoader struct {
	schema      *jsonschema.Schema
	constraints *semver.Constraints
}

// NewManifestLoader compiles the embedded manifest schema.
func NewManifestLoader() (*ManifestLoader, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("manifest.schema.json", bytes.NewReader(manifestSchema)); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	schema, err := compiler.Compile("manifest.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}

	constraints, err := semver.NewConstraint(SupportedManifestVersions)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest version constraint: %w", err)
	}

	return &ManifestLoader{schema: schema, constraints: constraints}, nil
}

// Load reads a manifest file.
func (l *ManifestLoader) Load(path string) (*entities.Application, error) {
	root, err := os.OpenRoot(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest directory: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	file, err := root.Open(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	return l.LoadFromReader(file)
}

// LoadFromReader reads a manifest from r. The document is checked against
// the manifest schema before it is decoded, so unknown fields and wrongly
// typed values are reported with their location.
func (l *ManifestLoader) LoadFromReader(r io.Reader) (*entities.Application, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest YAML: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest YAML: %w", err)
	}
	if err := l.schema.Validate(doc); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return nil, formatSchemaValidationError(validationErr)
		}
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	var app entities.Application
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to decode manifest YAML: %w", err)
	}

	if err := l.checkVersion(app.ManifestVersion); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	return &app, nil
}

func (l *ManifestLoader) checkVersion(raw string) error {
	version, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("invalid manifest_version %q: %w", raw, err)
	}
	if !l.constraints.Check(version) {
		return fmt.Errorf("unsupported manifest_version %s (supported: %s)", version, SupportedManifestVersions)
	}
	return nil
}

// formatSchemaValidationError flattens a schema validation error tree into
// one line per failing location.
func formatSchemaValidationError(err *jsonschema.ValidationError) error {
	var messages []string

	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if e.Message != "" && len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(err)

	if len(messages) == 0 {
		return fmt.Errorf("manifest validation failed")
	}
	return fmt.Errorf("manifest validation failed:\n    - %s", strings.Join(messages, "\n    - "))
}
