package querypack

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// Kind names one of the three query programs every language ships
type Kind string

const (
	KindDefs    Kind = "defs"
	KindRefs    Kind = "refs"
	KindImports Kind = "imports"
)

// Kinds lists the programs in load order
var Kinds = []Kind{KindDefs, KindRefs, KindImports}

//go:embed queries
var embeddedQueries embed.FS

// Provider supplies query program text for a (language, kind) pair
type Provider interface {
	Name() string
	Load(lang types.Language, kind Kind) (string, error)
}

// EmbeddedProvider serves the programs compiled into the binary
type EmbeddedProvider struct{}

func (EmbeddedProvider) Name() string { return "embedded" }

func (EmbeddedProvider) Load(lang types.Language, kind Kind) (string, error) {
	p := path.Join("queries", string(lang), string(kind)+".scm")
	data, err := embeddedQueries.ReadFile(p)
	if err != nil {
		return "", amerrors.NewProviderError("embedded", string(lang), p, err)
	}
	return string(data), nil
}

// FilesystemProvider reads <Dir>/<lang>/<kind>.scm on every call so query
// edits are visible without a restart.
type FilesystemProvider struct {
	Dir string
}

func (p FilesystemProvider) Name() string { return "filesystem" }

func (p FilesystemProvider) Load(lang types.Language, kind Kind) (string, error) {
	full := filepath.Join(p.Dir, string(lang), string(kind)+".scm")
	data, err := os.ReadFile(full)
	if err != nil {
		return "", amerrors.NewProviderError("filesystem", string(lang), full, err)
	}
	return string(data), nil
}

// NewProvider builds the provider named by the config
func NewProvider(name, dir string) (Provider, error) {
	switch name {
	case "", "embedded":
		return EmbeddedProvider{}, nil
	case "filesystem":
		if dir == "" {
			return nil, amerrors.NewConfigError("queries.dir", dir, fmt.Errorf("filesystem provider needs a directory"))
		}
		return FilesystemProvider{Dir: dir}, nil
	}
	return nil, amerrors.NewConfigError("queries.provider", name, fmt.Errorf("unknown provider"))
}
