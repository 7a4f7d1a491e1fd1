// Package streamio names the byte-stream contract the engine reads
// certificates/CMS messages from and writes built messages to (spec.md
// §6). It is the idiomatic Go rendering of "read(buf,n)->(n,status)" /
// "write(buf,n)->status": io.Reader/io.Writer already are that
// contract, so this package is a thin, named alias layer rather than a
// reimplementation.
package streamio

import "io"

// Reader is the input-side contract: a synchronous byte stream with no
// seek requirement. io.EOF signals end-of-input exactly like the
// "Eof" status of spec.md §6; any other error is a hard failure.
type Reader = io.Reader

// Writer is the output-side contract.
type Writer = io.Writer

// ReadFull reads exactly len(buf) bytes from r, or returns the
// underlying error (io.ErrUnexpectedEOF if the stream ends short).
func ReadFull(r Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// ReadAll drains r to completion, used by callers that read an entire
// DER message into memory before decoding (the engine buffers as
// needed; it is not a streaming decoder).
func ReadAll(r Reader) ([]byte, error) {
	return io.ReadAll(r)
}
