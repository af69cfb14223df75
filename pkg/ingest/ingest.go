// Package ingest contains the behaviour shared by every dataset ingest.
package ingest

import (
	"context"
	"os"
	"path/filepath"

	"github.com/eahazardswatch/geoingest/pkg/fetch"
	"github.com/eahazardswatch/geoingest/pkg/gsky"
	"github.com/eahazardswatch/geoingest/pkg/publish"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/toolchain"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Dataset is a periodically ingested dataset.
type Dataset interface {
	ID() string
	Run(context.Context) error
}

// Dependencies are the collaborators shared by all datasets.
type Dependencies struct {
	Logger    hclog.Logger
	State     state.Store
	Notifier  gsky.Notifier
	Toolchain *toolchain.Toolchain
	Fetch     *fetch.Client
	Publisher publish.Publisher
	TempDir   string
}

// Base implements the parts of a dataset common to all of them.
type Base struct {
	deps      Dependencies
	id        string
	logger    hclog.Logger
	outputDir string
}

// NewBase returns a new base for the dataset id writing into outputDir.
func NewBase(id, outputDir string, deps Dependencies) (*Base, error) {
	if err := RequireParameters("dataset_id", id, "output_dir", outputDir); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = hclog.NewNullLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.NewNoop()
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	return &Base{
		deps:      deps,
		id:        id,
		logger:    deps.Logger.Named(id),
		outputDir: outputDir,
	}, nil
}

// ID returns the dataset ID.
func (b *Base) ID() string {
	return b.id
}

// OutputDir returns the dataset output directory.
func (b *Base) OutputDir() string {
	return b.outputDir
}

// Logger returns the dataset logger.
func (b *Base) Logger() hclog.Logger {
	return b.logger
}

// Toolchain returns the GDAL / CDO toolchain.
func (b *Base) Toolchain() *toolchain.Toolchain {
	return b.deps.Toolchain
}

// Fetch returns the HTTP client.
func (b *Base) Fetch() *fetch.Client {
	return b.deps.Fetch
}

// State returns the current dataset state, empty when nothing was stored yet.
func (b *Base) State(ctx context.Context) (state.State, error) {
	b.logger.Debug("reading state")
	current, found, err := b.deps.State.Get(ctx, b.id)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading dataset state")
	}
	if !found {
		return state.State{}, nil
	}
	return current, nil
}

// UpdateState merges the update into the dataset state.
func (b *Base) UpdateState(ctx context.Context, update state.State) error {
	b.logger.Debug("writing state", "keys", update.Keys())
	if err := b.deps.State.Update(ctx, b.id, update); err != nil {
		return errors.Wrap(err, "failed writing dataset state")
	}
	return nil
}

// UpdateLastUpdate records the date of the last ingested data.
func (b *Base) UpdateLastUpdate(ctx context.Context, value string) error {
	return b.UpdateState(ctx, state.State{state.KeyLastUpdate: value})
}

// SendIngest notifies GSKY about new files of the namespace stored in dir.
func (b *Base) SendIngest(ctx context.Context, namespace, dir string) error {
	if b.deps.Notifier == nil {
		return nil
	}
	b.logger.Info("sending ingest command", "namespace", namespace)
	sent, err := b.deps.Notifier.SendIngest(ctx, IngestPayload(namespace, dir))
	if err != nil {
		return err
	}
	if !sent {
		b.logger.Debug("ingest command not sent, webhook not configured", "namespace", namespace)
	}
	return nil
}

// Publish mirrors the produced files relative to the output directory.
func (b *Base) Publish(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	if err := b.deps.Publisher.Publish(ctx, b.outputDir, files); err != nil {
		return errors.Wrap(err, "failed publishing files")
	}
	return nil
}

// WorkDir creates a temporary working directory and returns it with its cleanup function.
func (b *Base) WorkDir() (string, func(), error) {
	if err := os.MkdirAll(b.deps.TempDir, 0755); err != nil {
		return "", nil, errors.Wrap(err, "failed creating temporary directory root")
	}
	dir, err := os.MkdirTemp(b.deps.TempDir, b.id+"-")
	if err != nil {
		return "", nil, errors.Wrap(err, "failed creating working directory")
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			b.logger.Warn("failed removing working directory", "dir", dir, "reason", err)
		}
	}, nil
}

// NamespaceDir returns the output directory of a namespace.
func (b *Base) NamespaceDir(namespace string) string {
	return filepath.Join(b.outputDir, namespace)
}

// IngestPayload builds the GSKY ingest command for the namespace stored in dir.
func IngestPayload(namespace, dir string) gsky.Payload {
	return gsky.Payload{
		Namespace: "-n " + namespace,
		Path:      "-p " + dir,
		Datatype:  "-t tif",
		Args:      "-x -conf /rulesets/namespace_yyy-mm-ddTH.tif.json",
	}
}

// ProductPath returns <outputDir>/<namespace>/<namespace>_<date>.tif.
func ProductPath(outputDir, namespace, date string) string {
	return filepath.Join(outputDir, namespace, namespace+"_"+date+".tif")
}
