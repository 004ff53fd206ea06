package core

// Bytecode compression for the /alkanes/{id}/ storage path. Uses
// klauspost/compress's zstd encoder/decoder, a dependency otherwise only
// pulled in transitively (it ships inside wasmer-go's dependency graph)
// that this package promotes to a direct, exercised import.

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// CompressBytecode compresses raw WASM bytecode before it is written once to
// /alkanes/{id}/.
func CompressBytecode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("compress bytecode: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, fmt.Errorf("compress bytecode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress bytecode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressBytecode reverses CompressBytecode, used before linking a
// contract module into the WASM runtime.
func DecompressBytecode(compressed []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("decompress bytecode: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress bytecode: %w", err)
	}
	return out, nil
}
