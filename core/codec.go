package core

// Host/guest ABI codecs: binary layouts for the structures that cross the
// WASM boundary via __request_context/__load_context and the
// __call/__delegatecall/__staticcall argument and ExtendedCallResponse
// buffers. These reuse the Cellpack encoding's conventions (core/id.go): a
// u32 big-endian count prefix for vectors, u128 LEB128 varints for numeric
// values, and AlkaneId.Bytes()'s fixed 32-byte layout for ids.

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeContext serializes the fields of a Context that a running contract
// can observe through __request_context/__load_context: its own identity,
// caller, raw inputs, incoming transfers, and the block-scoped counters
// (height, tx index, vout, pointer, refund pointer). TransactionBytes and
// BlockBytes are reached through their own dedicated host calls and are not
// duplicated here.
func EncodeContext(ctx Context) []byte {
	var buf bytes.Buffer
	buf.Write(ctx.Caller.Bytes())
	buf.Write(ctx.Myself.Bytes())
	writeBytesField(&buf, ctx.Inputs)
	buf.Write(EncodeTransfers(ctx.IncomingAlkanes))
	var fixed [24]byte
	binary.BigEndian.PutUint64(fixed[0:8], ctx.Height)
	binary.BigEndian.PutUint32(fixed[8:12], ctx.TxIndex)
	binary.BigEndian.PutUint32(fixed[12:16], ctx.Vout)
	binary.BigEndian.PutUint32(fixed[16:20], ctx.Pointer)
	binary.BigEndian.PutUint32(fixed[20:24], ctx.RefundPointer)
	buf.Write(fixed[:])
	return buf.Bytes()
}

// EncodeTransfers serializes a vector of AlkaneTransfer as a u32 count
// followed by that many (32-byte id, LEB128 value) pairs.
func EncodeTransfers(transfers []AlkaneTransfer) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(transfers)))
	buf.Write(lenBuf[:])
	for _, t := range transfers {
		buf.Write(t.ID.Bytes())
		writeULEB128(&buf, t.Value)
	}
	return buf.Bytes()
}

// DecodeTransfers is the inverse of EncodeTransfers, used to decode the
// incoming-transfers argument of __call/__delegatecall/__staticcall.
func DecodeTransfers(b []byte) ([]AlkaneTransfer, error) {
	r := bytes.NewReader(b)
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("decode transfers count: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]AlkaneTransfer, 0, n)
	for i := uint32(0); i < n; i++ {
		idBytes := make([]byte, idByteWidth*2)
		if _, err := r.Read(idBytes); err != nil {
			return nil, fmt.Errorf("decode transfer %d id: %w", i, err)
		}
		id, err := ParseAlkaneId(idBytes)
		if err != nil {
			return nil, fmt.Errorf("decode transfer %d id: %w", i, err)
		}
		v, err := readULEB128(r)
		if err != nil {
			return nil, fmt.Errorf("decode transfer %d value: %w", i, err)
		}
		out = append(out, AlkaneTransfer{ID: id, Value: v})
	}
	return out, nil
}

// EncodeResponse serializes an ExtendedCallResponse as the guest is expected
// to lay it out in its own linear memory before exposing it through
// __response_ptr/__response_len: the declared transfers, then the storage
// diff (as (key, value) byte-string pairs), then the raw return data.
func EncodeResponse(resp *ExtendedCallResponse) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeTransfers(resp.Alkanes))

	var storeLen [4]byte
	binary.BigEndian.PutUint32(storeLen[:], uint32(len(resp.Storage)))
	buf.Write(storeLen[:])
	for _, kv := range resp.Storage {
		writeBytesField(&buf, kv[0])
		writeBytesField(&buf, kv[1])
	}

	writeBytesField(&buf, resp.Data)
	return buf.Bytes()
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(b []byte) (*ExtendedCallResponse, error) {
	r := bytes.NewReader(b)

	transferLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode response transfer count: %w", err)
	}
	transfers := make([]AlkaneTransfer, 0, transferLen)
	for i := uint32(0); i < transferLen; i++ {
		idBytes := make([]byte, idByteWidth*2)
		if _, err := r.Read(idBytes); err != nil {
			return nil, fmt.Errorf("decode response transfer %d id: %w", i, err)
		}
		id, err := ParseAlkaneId(idBytes)
		if err != nil {
			return nil, fmt.Errorf("decode response transfer %d id: %w", i, err)
		}
		v, err := readULEB128(r)
		if err != nil {
			return nil, fmt.Errorf("decode response transfer %d value: %w", i, err)
		}
		transfers = append(transfers, AlkaneTransfer{ID: id, Value: v})
	}

	storageLen, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("decode response storage count: %w", err)
	}
	storage := make([][2][]byte, 0, storageLen)
	for i := uint32(0); i < storageLen; i++ {
		k, err := readBytesField(r)
		if err != nil {
			return nil, fmt.Errorf("decode response storage %d key: %w", i, err)
		}
		v, err := readBytesField(r)
		if err != nil {
			return nil, fmt.Errorf("decode response storage %d value: %w", i, err)
		}
		storage = append(storage, [2][]byte{k, v})
	}

	data, err := readBytesField(r)
	if err != nil {
		return nil, fmt.Errorf("decode response data: %w", err)
	}

	return &ExtendedCallResponse{Alkanes: transfers, Storage: storage, Data: data}, nil
}

func writeBytesField(buf *bytes.Buffer, v []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	buf.Write(lenBuf[:])
	buf.Write(v)
}

func readU32(r *bytes.Reader) (uint32, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(lenBuf[:]), nil
}

func readBytesField(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}
