package hcl

import (
	"context"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/viewgrid/internal/config"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a new HCL view loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file under paths and merges their blocks into one
// view. Blocks may be spread over any number of files.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.View, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(".hcl", paths...)
	if err != nil {
		return nil, cerrors.ErrLoadView.GenWithStackByArgs(paths, err)
	}
	if len(files) == 0 {
		return nil, cerrors.ErrLoadView.GenWithStackByArgs(paths, "no .hcl files found")
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	view := config.NewView()
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, cerrors.ErrLoadView.GenWithStackByArgs(file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, cerrors.ErrLoadView.GenWithStackByArgs(file, diags)
		}
		if err := translate(ctx, &root, view); err != nil {
			return nil, cerrors.ErrLoadView.GenWithStackByArgs(file, err)
		}
	}

	logger.Debug("HCL loading complete.", "targets", len(view.Targets), "functions", len(view.Functions),
		"requirements", len(view.Requirements), "market_data", len(view.MarketData))
	return view, nil
}
