package jsonrpc2

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/vipnode/duplexrpc/internal/pretty"
)

// Transport is a duplex channel of discrete chunks. Each chunk read is
// expected to hold exactly one message or one batch. WriteChunk must be safe
// for concurrent use.
type Transport interface {
	ReadChunk() ([]byte, error)
	WriteChunk([]byte) error
	Close() error
}

// ErrChunkTooLarge is returned by IOTransport when a line exceeds its limit.
var ErrChunkTooLarge = errors.New("chunk too large")

// DefaultMaxChunk is the line size limit for IOTransport.
const DefaultMaxChunk = 4 << 20

var _ Transport = &ioTransport{}

// IOTransport returns a Transport that frames chunks as newline-delimited
// lines over a byte stream, the same layout json.Encoder produces.
func IOTransport(rwc io.ReadWriteCloser) *ioTransport {
	return &ioTransport{
		r:        bufio.NewReader(rwc),
		w:        rwc,
		closer:   rwc,
		MaxChunk: DefaultMaxChunk,
	}
}

type ioTransport struct {
	// MaxChunk is the maximum accepted line length.
	MaxChunk int

	muRead  sync.Mutex
	muWrite sync.Mutex
	r       *bufio.Reader
	w       io.Writer
	closer  io.Closer
}

func (t *ioTransport) ReadChunk() ([]byte, error) {
	t.muRead.Lock()
	defer t.muRead.Unlock()
	var line []byte
	for {
		part, isPrefix, err := t.r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, part...)
		if t.MaxChunk > 0 && len(line) > t.MaxChunk {
			return nil, ErrChunkTooLarge
		}
		if !isPrefix {
			return line, nil
		}
	}
}

func (t *ioTransport) WriteChunk(chunk []byte) error {
	t.muWrite.Lock()
	defer t.muWrite.Unlock()
	buf := make([]byte, 0, len(chunk)+1)
	buf = append(buf, chunk...)
	buf = append(buf, '\n')
	_, err := t.w.Write(buf)
	return err
}

func (t *ioTransport) Close() error {
	return t.closer.Close()
}

// PipeTransport returns two connected in-memory transports.
func PipeTransport() (Transport, Transport) {
	c1, c2 := net.Pipe()
	return IOTransport(c1), IOTransport(c2)
}

// DebugTransport wraps a transport and logs every chunk passing through it,
// labelled with the given name.
func DebugTransport(label string, t Transport) Transport {
	return &debugTransport{label: label, inner: t}
}

type debugTransport struct {
	label string
	inner Transport
}

func (t *debugTransport) ReadChunk() ([]byte, error) {
	chunk, err := t.inner.ReadChunk()
	if err != nil {
		logger.Debugf("%s <- read error: %s", t.label, err)
		return chunk, err
	}
	logger.Debugf("%s <- %s", t.label, pretty.Abbrev(string(chunk), 256))
	return chunk, nil
}

func (t *debugTransport) WriteChunk(chunk []byte) error {
	logger.Debugf("%s -> %s", t.label, pretty.Abbrev(string(chunk), 256))
	return t.inner.WriteChunk(chunk)
}

func (t *debugTransport) Close() error {
	return t.inner.Close()
}
