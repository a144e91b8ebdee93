// Package wire implements the minimal on-the-wire request surface spec.md
// §6 names but keeps out of core scope: a (collection_id, key_dimensions[])
// request resolved through the DA router, msgpack-encoded for use over
// any io.ReadWriter. Grounded in the teacher's rpc/ request/response
// framing style, kept deliberately thin: no transport, only the wire
// struct and its codec.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kvladder/ladderstore/errs"
	"github.com/kvladder/ladderstore/version"
)

// Request carries one lookup against a doubling array: the collection
// (DA) it targets, plus the dimensions of the key being resolved.
type Request struct {
	CollectionID   uint32     `msgpack:"collection_id"`
	KeyDimensions  [][]byte   `msgpack:"key_dimensions"`
	Version        version.ID `msgpack:"version"`
}

// Response carries the router's answer: the resolved value, or Absent set
// when no reachable entry existed.
type Response struct {
	Value  []byte `msgpack:"value"`
	Absent bool   `msgpack:"absent"`
}

// WriteRequest msgpack-encodes req and writes it to w, length-prefixed so
// the reader knows exactly how many bytes to consume.
func WriteRequest(w io.Writer, req *Request) error {
	return writeFramed(w, req)
}

// ReadRequest reads and decodes one length-prefixed Request from r.
func ReadRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := readFramed(r, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteResponse msgpack-encodes resp and writes it to w.
func WriteResponse(w io.Writer, resp *Response) error {
	return writeFramed(w, resp)
}

// ReadResponse reads and decodes one length-prefixed Response from r.
func ReadResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := readFramed(r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func writeFramed(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding wire message: %v", errs.ErrInvalidInput, err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: writing wire frame length: %v", errs.ErrStorage, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: writing wire frame body: %v", errs.ErrStorage, err)
	}
	return nil
}

func readFramed(r io.Reader, v any) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return fmt.Errorf("%w: reading wire frame length: %v", errs.ErrStorage, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("%w: reading wire frame body: %v", errs.ErrStorage, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding wire message: %v", errs.ErrInvalidInput, err)
	}
	return nil
}
