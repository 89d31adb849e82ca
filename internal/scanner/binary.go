package scanner

import (
	"bytes"
	"path/filepath"
	"strings"
)

// sniffBytes is how much of a file is inspected for binary content
const sniffBytes = 512

var binaryExtensions = map[string]bool{
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true, ".tiff": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true, ".jar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true, ".obj": true, ".bin": true,
	".mp3": true, ".mp4": true, ".mov": true, ".wav": true, ".flac": true, ".ogg": true,
	".pdf": true, ".docx": true, ".xlsx": true, ".pptx": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".pyc": true, ".pyo": true, ".class": true, ".wasm": true,
}

var magicNumbers = [][]byte{
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0xFF, 0xD8, 0xFF},       // jpeg
	{0x47, 0x49, 0x46, 0x38}, // gif
	{0x25, 0x50, 0x44, 0x46}, // pdf
	{0x7F, 0x45, 0x4C, 0x46}, // elf
	{0xCA, 0xFE, 0xBA, 0xBE}, // mach-o, java class
	{0x00, 0x61, 0x73, 0x6D}, // wasm
}

// binaryByExtension rejects files whose extension is never source text
func binaryByExtension(path string) bool {
	return binaryExtensions[strings.ToLower(filepath.Ext(path))]
}

// binaryContent sniffs the head of content: known magic numbers, NUL bytes,
// or mostly control characters mark it binary. Bytes >= 0x80 are not held
// against it so UTF-8 text passes.
func binaryContent(content []byte) bool {
	sample := content[:min(len(content), sniffBytes)]
	if len(sample) == 0 {
		return false
	}
	for _, magic := range magicNumbers {
		if bytes.HasPrefix(sample, magic) {
			return true
		}
	}
	control := 0
	for _, b := range sample {
		if b == 0 {
			return true
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' && b != '\f' {
			control++
		}
	}
	return control*10 > len(sample)*3
}
