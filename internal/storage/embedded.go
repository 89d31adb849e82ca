package storage

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// EmbeddedSink writes the header block into the source file itself, at the
// end after one blank line. With inline set it also tags the first line of
// every top-level definition with an inline anchor.
type EmbeddedSink struct {
	root      string
	chunkSize int
	inline    bool
}

// NewEmbeddedSink creates an embedded sink; chunkSize <= 0 uses
// anchor.DefaultChunkSize
func NewEmbeddedSink(root string, chunkSize int, inline bool) *EmbeddedSink {
	if chunkSize <= 0 {
		chunkSize = anchor.DefaultChunkSize
	}
	return &EmbeddedSink{root: root, chunkSize: chunkSize, inline: inline}
}

func (s *EmbeddedSink) Name() string { return "embedded" }

func (s *EmbeddedSink) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// Render returns content carrying h: the old header and inline anchors
// replaced by the new ones
func (s *EmbeddedSink) Render(content []byte, h *types.AnchorHeader) ([]byte, error) {
	payload, err := anchor.Encode(h)
	if err != nil {
		return nil, err
	}
	body := anchor.StripInline(anchor.StripHeader(content))
	if s.inline {
		body = anchor.ApplyInline(body, anchor.InlineAnchors(h), string(h.Language))
	}
	return anchor.Embed(body, anchor.FormatHeaderComments(payload, string(h.Language), s.chunkSize)), nil
}

func (s *EmbeddedSink) PutAnchor(ctx context.Context, fileID string, h *types.AnchorHeader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.abs(PathOf(fileID))
	content, mode, err := readWithMode(target)
	if err != nil {
		return amerrors.NewIoError("read", target, err)
	}
	out, err := s.Render(content, h)
	if err != nil {
		return err
	}
	if bytes.Equal(out, content) {
		return nil
	}
	if err := writeFileAtomic(target, out, mode); err != nil {
		return amerrors.NewIoError("write", target, err)
	}
	debug.LogStore("embedded header into %s", target)
	return nil
}

func (s *EmbeddedSink) Get(ctx context.Context, path string) (*types.AnchorHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target := s.abs(path)
	content, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, amerrors.NewIoError("read", target, err)
	}
	h, err := anchor.DecodeContent(content)
	if errors.Is(err, amerrors.ErrNoAnchor) {
		return nil, notFound(path)
	}
	return h, err
}

// Delete strips the header block and inline anchors from the source
func (s *EmbeddedSink) Delete(ctx context.Context, fileID string) error {
	target := s.abs(PathOf(fileID))
	content, mode, err := readWithMode(target)
	if errors.Is(err, fs.ErrNotExist) {
		return notFound(PathOf(fileID))
	}
	if err != nil {
		return amerrors.NewIoError("read", target, err)
	}
	out := anchor.Canonical(content)
	if bytes.Equal(out, content) {
		return notFound(PathOf(fileID))
	}
	if err := writeFileAtomic(target, out, mode); err != nil {
		return amerrors.NewIoError("write", target, err)
	}
	return nil
}

// List is not supported: finding embedded headers means scanning the tree,
// which is the scanner's job.
func (s *EmbeddedSink) List(context.Context, string) ([]string, error) {
	return nil, errors.New("embedded sink cannot list anchors")
}

func readWithMode(path string) ([]byte, fs.FileMode, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	return content, fi.Mode().Perm(), nil
}
