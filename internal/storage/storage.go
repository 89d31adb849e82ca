// Package storage persists anchor headers. Sinks write one anchor per
// source file: as a sidecar YAML file, embedded in the source itself, as a
// database row or as an object in a bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Sink receives anchors. File ids have the form "<path>@<8 hex>" with the
// path relative to the project root.
type Sink interface {
	PutAnchor(ctx context.Context, fileID string, h *types.AnchorHeader) error
	Delete(ctx context.Context, fileID string) error
	List(ctx context.Context, project string) ([]string, error)
}

// Source reads anchors back. Get returns an error wrapping
// ErrAnchorNotFound when there is none and a CodecError when the stored
// anchor cannot be decoded.
type Source interface {
	Get(ctx context.Context, path string) (*types.AnchorHeader, error)
}

// Store is a sink that can also be read
type Store interface {
	Sink
	Source
	Name() string
}

// PathOf strips the fingerprint suffix of a file id
func PathOf(fileID string) string {
	if i := strings.LastIndex(fileID, "@"); i >= 0 {
		return fileID[:i]
	}
	return fileID
}

// RetryBackoff is the pause before the single write retry
var RetryBackoff = 100 * time.Millisecond

// Facade fans writes out to every configured store and reads from the
// primary one.
type Facade struct {
	stores  []Store
	primary Store
	closers []func() error
}

// NewFacade combines stores; primary must be one of them
func NewFacade(primary Store, others ...Store) *Facade {
	f := &Facade{primary: primary, stores: []Store{primary}}
	for _, s := range others {
		if s != nil && s != primary {
			f.stores = append(f.stores, s)
		}
	}
	return f
}

// Open builds the facade for cfg: the stores selected by output.mode plus
// the one selected by storage.sink, which is also the primary.
func Open(ctx context.Context, cfg *config.Config) (*Facade, error) {
	root := cfg.Project.Root
	var sidecar, embedded Store
	newSidecar := func() Store {
		if sidecar == nil {
			sidecar = NewSidecarSink(root, cfg.Output.SidecarDir)
		}
		return sidecar
	}
	newEmbedded := func() Store {
		if embedded == nil {
			embedded = NewEmbeddedSink(root, cfg.Output.ChunkSize, cfg.Output.Inline)
		}
		return embedded
	}

	var outputs []Store
	switch cfg.Output.Mode {
	case config.OutputEmbedded:
		outputs = append(outputs, newEmbedded())
	case config.OutputBoth:
		outputs = append(outputs, newSidecar(), newEmbedded())
	default:
		outputs = append(outputs, newSidecar())
	}

	var primary Store
	var closers []func() error
	switch cfg.Storage.Sink {
	case config.SinkEmbedded:
		primary = newEmbedded()
	case config.SinkSQL:
		s, err := OpenSQL(ctx, cfg.Storage.SQLDriver, cfg.Storage.DSN, projectName(cfg))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureProject(ctx, projectName(cfg), root); err != nil {
			s.Close()
			return nil, err
		}
		primary = s
		closers = append(closers, s.Close)
	case config.SinkObject:
		ms, err := NewMinioStore(cfg.Storage.Object)
		if err != nil {
			return nil, amerrors.NewConfigError("storage.object", cfg.Storage.Object.Endpoint, err)
		}
		primary = NewObjectSink(ms, projectName(cfg))
	default:
		primary = newSidecar()
	}

	f := NewFacade(primary, outputs...)
	f.closers = closers
	debug.LogStore("opened %d stores, primary %s", len(f.stores), primary.Name())
	return f, nil
}

func projectName(cfg *config.Config) string {
	if cfg.Project.Name != "" {
		return cfg.Project.Name
	}
	return filepath.Base(cfg.Project.Root)
}

// Primary returns the store reads go to
func (f *Facade) Primary() Store {
	return f.primary
}

// Name lists the store names
func (f *Facade) Name() string {
	names := make([]string, len(f.stores))
	for i, s := range f.stores {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// PutAnchor writes h to every store. An IoError is retried once after
// RetryBackoff. Failures of separate stores are aggregated.
func (f *Facade) PutAnchor(ctx context.Context, fileID string, h *types.AnchorHeader) error {
	var errs []error
	for _, s := range f.stores {
		if err := putWithRetry(ctx, s, fileID, h); err != nil {
			errs = append(errs, err)
		}
	}
	return amerrors.NewMultiError(errs).ErrorOrNil()
}

func putWithRetry(ctx context.Context, s Sink, fileID string, h *types.AnchorHeader) error {
	err := s.PutAnchor(ctx, fileID, h)
	if amerrors.Kind(err) != amerrors.ErrorTypeIO {
		return err
	}
	debug.LogStore("retrying write of %s: %v", fileID, err)
	select {
	case <-ctx.Done():
		return err
	case <-time.After(RetryBackoff):
	}
	err = s.PutAnchor(ctx, fileID, h)
	var ioe *amerrors.IoError
	if errors.As(err, &ioe) {
		ioe.Retried = true
	}
	return err
}

// Delete removes the anchor from every store. A missing anchor is not an
// error.
func (f *Facade) Delete(ctx context.Context, fileID string) error {
	var errs []error
	for _, s := range f.stores {
		if err := s.Delete(ctx, fileID); err != nil && !errors.Is(err, amerrors.ErrAnchorNotFound) {
			errs = append(errs, err)
		}
	}
	return amerrors.NewMultiError(errs).ErrorOrNil()
}

// List returns the file ids the primary store holds
func (f *Facade) List(ctx context.Context, project string) ([]string, error) {
	return f.primary.List(ctx, project)
}

// Get reads from the primary store
func (f *Facade) Get(ctx context.Context, path string) (*types.AnchorHeader, error) {
	return f.primary.Get(ctx, path)
}

// Close releases database connections
func (f *Facade) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return amerrors.NewMultiError(errs).ErrorOrNil()
}

func notFound(path string) error {
	return fmt.Errorf("%w: %s", amerrors.ErrAnchorNotFound, path)
}

// withPath records path on a codec error raised without one
func withPath(err error, path string) error {
	var ce *amerrors.CodecError
	if errors.As(err, &ce) && ce.FilePath == "" {
		ce.FilePath = path
	}
	return err
}
