package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError(t *testing.T) {
	underlying := errors.New("must be >= 0")
	err := NewConfigError("line_budget", "-3", underlying)

	assert.Equal(t, "line_budget", err.Field)
	assert.True(t, errors.Is(err, underlying))
	assert.Equal(t, "config error for field line_budget (value -3): must be >= 0", err.Error())
	assert.False(t, err.Timestamp.IsZero())
}

func TestQueryCompileErrorPreview(t *testing.T) {
	pattern := strings.Repeat("(identifier) ", 20)
	err := NewQueryCompileError("go", "refs", "abcd1234", pattern, errors.New("bad node"))

	assert.Equal(t, previewLen+3, len(err.Preview))
	assert.True(t, strings.HasSuffix(err.Preview, "..."))
	assert.Contains(t, err.Error(), "go/refs (abcd1234)")

	short := NewQueryCompileError("go", "defs", "h", "(x)", errors.New("bad"))
	assert.Equal(t, "(x)", short.Preview)
}

func TestKindWalksWrappedChain(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"config", NewConfigError("f", "v", errors.New("x")), ErrorTypeConfig},
		{"wrapped provider", fmt.Errorf("loading: %w", NewProviderError("filesystem", "go", "q.scm", errors.New("x"))), ErrorTypeProvider},
		{"compile", NewQueryCompileError("go", "defs", "h", "p", errors.New("x")), ErrorTypeQueryCompile},
		{"parse", NewParseError("a.go", "go", 1, 1, errors.New("x")), ErrorTypeParse},
		{"analyzer", NewAnalyzerError("resolve", "a.go", errors.New("x")), ErrorTypeAnalyzer},
		{"codec", NewCodecError("decode", "a.go", errors.New("x")), ErrorTypeCodec},
		{"io", NewIoError("write", "a.go", errors.New("x")), ErrorTypeIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestIsFatalForLanguage(t *testing.T) {
	assert.True(t, IsFatalForLanguage(NewProviderError("embedded", "go", "", errors.New("x"))))
	assert.True(t, IsFatalForLanguage(NewQueryCompileError("go", "defs", "h", "p", errors.New("x"))))
	assert.False(t, IsFatalForLanguage(NewParseError("a.go", "go", 1, 1, errors.New("x"))))
}

func TestIoErrorRetriedMessage(t *testing.T) {
	err := NewIoError("write", "/tmp/a.yaml", errors.New("disk full"))
	assert.NotContains(t, err.Error(), "retry")
	err.Retried = true
	assert.Contains(t, err.Error(), "(after retry)")
}

func TestMultiError(t *testing.T) {
	err1 := NewConfigError("languages", "cobol", errors.New("unknown language"))
	err2 := NewConfigError("include", "[", errors.New("bad glob"))

	multi := NewMultiError([]error{err1, nil, err2})
	require.Len(t, multi.Errors, 2)
	assert.True(t, errors.Is(multi, err1.Underlying))
	assert.Contains(t, multi.Error(), "2 errors")

	var cfg *ConfigError
	require.True(t, errors.As(multi, &cfg))
	assert.Equal(t, "languages", cfg.Field)

	assert.NoError(t, NewMultiError(nil).ErrorOrNil())
	assert.Equal(t, "no errors", NewMultiError(nil).Error())
	assert.Equal(t, err1.Error(), NewMultiError([]error{err1}).Error())
}
