package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/eahazardswatch/geoingest/pkg/flock"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/eahazardswatch/geoingest/pkg/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// ProviderName is the name of the provider.
const ProviderName = "file"

// StateFileName is the name of the state document in the state directory.
const StateFileName = "state.json"

type providerConfig struct {
	Dir string `mapstructure:"dir"`
}

// document is the on-disk layout: {"<dataset>": {"<key>": "<value>"}}.
type document map[string]state.State

type provider struct {
	sync.Mutex
	config *providerConfig
	logger hclog.Logger
	lock   flock.Lock
}

// New returns a new instance of the provider.
func New(logger hclog.Logger) state.Provider {
	return &provider{
		logger: logger,
	}
}

func (p *provider) Configure(mapConfig map[string]interface{}) error {
	pConfig := &providerConfig{}
	if err := mapstructure.Decode(&mapConfig, pConfig); err != nil {
		p.logger.Error("error when decoding configuration", "reason", err)
		return errors.Wrap(err, "failed decoding provider configuration")
	}
	if pConfig.Dir == "" {
		return errors.New("state directory not configured")
	}
	if err := os.MkdirAll(pConfig.Dir, 0755); err != nil {
		return errors.Wrap(err, "failed creating state directory")
	}
	p.config = pConfig
	p.lock = flock.New(filepath.Join(pConfig.Dir, "."+StateFileName+".lock"))
	return nil
}

func (p *provider) path() string {
	return filepath.Join(p.config.Dir, StateFileName)
}

func (p *provider) Get(ctx context.Context, datasetID string) (state.State, bool, error) {
	var result state.State
	var found bool
	err := p.locked(ctx, func() error {
		doc, err := p.read()
		if err != nil {
			return err
		}
		result, found = doc[datasetID]
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !found || len(result) == 0 {
		return nil, false, nil
	}
	return result.Copy(), true, nil
}

func (p *provider) Update(ctx context.Context, datasetID string, update state.State) error {
	return p.locked(ctx, func() error {
		doc, err := p.read()
		if err != nil {
			return err
		}
		current := doc[datasetID].Copy()
		for k, v := range update {
			current[k] = v
		}
		doc[datasetID] = current
		p.logger.Debug("writing state", "dataset", datasetID, "keys", update.Keys())
		return p.write(doc)
	})
}

func (p *provider) Reset(ctx context.Context, datasetID string) error {
	return p.locked(ctx, func() error {
		doc, err := p.read()
		if err != nil {
			return err
		}
		delete(doc, datasetID)
		return p.write(doc)
	})
}

func (p *provider) List(ctx context.Context) (map[string]state.State, error) {
	result := map[string]state.State{}
	err := p.locked(ctx, func() error {
		doc, err := p.read()
		if err != nil {
			return err
		}
		for k, v := range doc {
			result[k] = v.Copy()
		}
		return nil
	})
	return result, err
}

func (p *provider) Close() error {
	return nil
}

// locked serializes access within the process with the mutex
// and across processes with the flock.
func (p *provider) locked(ctx context.Context, f func() error) error {
	if p.config == nil {
		return errors.New("provider not configured")
	}
	p.Lock()
	defer p.Unlock()
	if err := p.lock.AcquireContext(ctx); err != nil {
		return errors.Wrap(err, "failed acquiring state lock")
	}
	defer p.lock.Release()
	return f()
}

// read loads the document. A missing file is created empty,
// a file which can't be decoded is replaced with an empty document.
func (p *provider) read() (document, error) {
	data, err := os.ReadFile(p.path())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed reading state file")
		}
		p.logger.Debug("state file does not exist, creating", "path", p.path())
		if err := utils.AtomicWriteFile(p.path(), []byte("{}"), 0644); err != nil {
			return nil, errors.Wrap(err, "failed creating state file")
		}
		return document{}, nil
	}
	doc := document{}
	if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
		p.logger.Warn("state file is corrupt, resetting", "path", p.path(), "reason", jsonErr)
		doc = document{}
		if err := p.write(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func (p *provider) write(doc document) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errors.Wrap(err, "failed serializing state")
	}
	if err := utils.AtomicWriteFile(p.path(), data, 0644); err != nil {
		return errors.Wrap(err, "failed writing state file")
	}
	return nil
}
