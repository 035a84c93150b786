package manifest

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/typegrid/internal/ctxlog"
	"github.com/vk/typegrid/internal/fsutil"
	"github.com/vk/typegrid/internal/sequencer"
)

// LoadPath finds and parses every .hcl manifest under the given path and
// returns the units they declare, in file order.
func LoadPath(ctx context.Context, path string) ([]sequencer.Unit, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading unit manifests from path...", "path", path)

	filePaths, err := fsutil.FindFilesByExtension(path, ".hcl")
	if err != nil {
		logger.Error("Failed to walk manifest directory", "path", path, "error", err)
		return nil, err
	}
	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path", "path", path)
		return nil, nil
	}

	parser := hclparse.NewParser()
	var units []sequencer.Unit

	for _, filePath := range filePaths {
		parsed, err := loadFile(ctx, parser, filePath)
		if err != nil {
			return nil, err
		}
		units = append(units, parsed...)
		logger.Debug("Loaded unit definitions from manifest file", "file", filePath, "units", len(parsed))
	}

	logger.Info("Manifests loaded.", "files", len(filePaths), "units", len(units))
	return units, nil
}

// loadFile parses a single manifest file into units.
func loadFile(ctx context.Context, parser *hclparse.Parser, filePath string) ([]sequencer.Unit, error) {
	hclFileBody, diags := parser.ParseHCLFile(filePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse manifest file %s: %w", filePath, diags)
	}

	var parsed hclFile
	if diags := gohcl.DecodeBody(hclFileBody.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode manifest file %s: %w", filePath, diags)
	}

	units := make([]sequencer.Unit, 0, len(parsed.Units))
	for _, u := range parsed.Units {
		unit, err := u.toUnit(ctx, filePath)
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, nil
}
