package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
)

// Parse decodes a scenario definition. ext selects the format: ".json",
// ".yaml" or ".yml". Unknown fields are rejected in both formats. The
// result is validated.
func Parse(data []byte, ext string) (*Scenario, error) {
	var s Scenario
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, &narrative.Error{Kind: narrative.KindValidation, Message: fmt.Sprintf("decode scenario json: %v", err), Cause: err}
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, &narrative.Error{Kind: narrative.KindValidation, Message: fmt.Sprintf("decode scenario yaml: %v", err), Cause: err}
		}
	default:
		return nil, narrative.Validationf("unsupported scenario file extension %q", ext)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseFile reads and parses one scenario file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// IsScenarioFile reports whether path has a scenario file extension.
func IsScenarioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDir parses every scenario file under dir concurrently. Any file that
// fails to parse fails the whole load. Results are sorted by file path.
func LoadDir(ctx context.Context, dir string) ([]*Scenario, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsScenarioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk scenarios directory: %w", err)
	}

	scenarios := make([]*Scenario, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := ParseFile(path)
			if err != nil {
				return err
			}
			scenarios[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scenarios, nil
}
