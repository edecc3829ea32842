package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"mini-rdp/protocol"
)

// errBulkDone is returned by reads on a bulk payload after its request was answered.
var errBulkDone = errors.New("rdp: bulk payload no longer readable")

// conn is one client connection. All frames written to it go through
// writeMu so concurrent responses and events never interleave.
type conn struct {
	net.Conn
	writeMu sync.Mutex
}

func (c *conn) writeFrame(header *protocol.Header, body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.Encode(c.Conn, header, body)
}

// bulkReader hands the raw bytes following a bulk frame to a handler. The
// read loop calls drain once the handler returns, so a handler that keeps a
// reference (or was abandoned by a timeout) can no longer touch the stream.
type bulkReader struct {
	mu     sync.Mutex
	r      io.Reader // limited to the announced length
	length int64
	done   bool
}

func newBulkReader(r io.Reader, length int64) *bulkReader {
	return &bulkReader{r: io.LimitReader(r, length), length: length}
}

func (b *bulkReader) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return 0, errBulkDone
	}
	return b.r.Read(p)
}

// copyTo writes the remaining payload to w.
func (b *bulkReader) copyTo(w io.Writer) (int64, error) {
	return io.Copy(w, b)
}

// copyToBuffer reads the remaining payload into buf, which must be large
// enough to hold the whole announced length.
func (b *bulkReader) copyToBuffer(buf []byte) (int, error) {
	if int64(len(buf)) < b.length {
		return 0, fmt.Errorf("rdp: bulk buffer holds %d bytes, payload is %d", len(buf), b.length)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return 0, errBulkDone
	}
	n, err := io.ReadFull(b.r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		// The limit, not the connection, ended the read.
		if lr := b.r.(*io.LimitedReader); lr.N == 0 {
			err = nil
		}
	}
	return n, err
}

// drain discards what the handler did not read and closes the payload.
func (b *bulkReader) drain() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
	if _, err := io.Copy(io.Discard, b.r); err != nil {
		return err
	}
	if b.r.(*io.LimitedReader).N > 0 {
		return io.ErrUnexpectedEOF
	}
	return nil
}
