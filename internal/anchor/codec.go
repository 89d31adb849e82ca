// Package anchor encodes per-file analysis headers into compact comment
// blocks and validates them against file content.
package anchor

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// DefaultChunkSize is the maximum payload characters per comment line
const DefaultChunkSize = 8192

// Encode serializes h as short-key JSON, gzips it at best compression and
// returns the base64 payload. Equal headers always produce equal payloads.
func Encode(h *types.AnchorHeader) (string, error) {
	if h == nil {
		return "", amerrors.NewCodecError("encode", "", fmt.Errorf("nil header"))
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "", amerrors.NewCodecError("encode", h.Path(), err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", amerrors.NewCodecError("encode", h.Path(), err)
	}
	if _, err := zw.Write(raw); err != nil {
		return "", amerrors.NewCodecError("encode", h.Path(), err)
	}
	if err := zw.Close(); err != nil {
		return "", amerrors.NewCodecError("encode", h.Path(), err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode
func Decode(payload string) (*types.AnchorHeader, error) {
	compressed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("base64: %w", err))
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("gzip: %w", err))
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("gzip: %w", err))
	}

	var h types.AnchorHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, amerrors.NewCodecError("decode", "", fmt.Errorf("json: %w", err))
	}
	if h.Version != types.AnchorVersion {
		return nil, amerrors.NewCodecError("decode", h.Path(), fmt.Errorf("unsupported anchor version %d", h.Version))
	}
	return &h, nil
}

// Chunk splits payload into pieces of at most size characters
func Chunk(payload string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if payload == "" {
		return []string{""}
	}
	chunks := make([]string, 0, len(payload)/size+1)
	for len(payload) > size {
		chunks = append(chunks, payload[:size])
		payload = payload[size:]
	}
	return append(chunks, payload)
}

// PayloadHash is the hex SHA-1 of the base64 payload, written on the
// total-bytes line.
func PayloadHash(payload string) string {
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// FileFingerprint hashes canonical content (see Canonical). Only the
// number of final newlines is ignored, since Embed rewrites it when it
// appends the header; trailing spaces and whitespace-only lines count.
func FileFingerprint(canonical []byte) string {
	sum := sha256.Sum256(bytes.TrimRight(canonical, "\n"))
	return "sha1:" + hex.EncodeToString(sum[:])
}

// SymbolFingerprint is the short content hash of one definition's text
func SymbolFingerprint(text []byte) string {
	sum := sha256.Sum256(text)
	return hex.EncodeToString(sum[:])[:8]
}

// FileID builds the stable "<path>@<8 hex>" identity of a file
func FileID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return path + "@" + hex.EncodeToString(sum[:])[:8]
}

// fingerprintDigest extracts the hex digest from any accepted fingerprint
// form: "sha1:<40 hex>", "sha1:<64 hex>" or "sha256:<64 hex>".
func fingerprintDigest(fp string) (string, bool) {
	algo, digest, ok := strings.Cut(strings.TrimSpace(fp), ":")
	if !ok {
		return "", false
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", false
	}
	switch {
	case algo == "sha1" && (len(digest) == 40 || len(digest) == 64):
		return strings.ToLower(digest), true
	case algo == "sha256" && len(digest) == 64:
		return strings.ToLower(digest), true
	}
	return "", false
}
