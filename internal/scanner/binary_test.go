package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBinaryByExtension(t *testing.T) {
	assert.True(t, binaryByExtension("assets/logo.PNG"))
	assert.True(t, binaryByExtension("lib/native.so"))
	assert.False(t, binaryByExtension("main.go"))
	assert.False(t, binaryByExtension("Makefile"))
}

func TestBinaryContent(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"empty", nil, false},
		{"source", []byte("package main\n\nfunc main() {}\n"), false},
		{"utf8", []byte("// héllo wörld ✓\nlet x = 1;\n"), false},
		{"gzip magic", []byte{0x1F, 0x8B, 0x08, 0x00}, true},
		{"nul byte", []byte("abc\x00def"), true},
		{"control heavy", []byte("\x01\x02\x03\x04abc"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, binaryContent(tt.content))
		})
	}
}
