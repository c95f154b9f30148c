package jsonrpc2

import (
	"bytes"
	"io"
	"io/ioutil"
	"testing"
)

func TestIOTransport(t *testing.T) {
	var buf bytes.Buffer
	rwc := struct {
		io.Reader
		io.Writer
		io.Closer
	}{
		Reader: &buf,
		Writer: &buf,
		Closer: ioutil.NopCloser(&buf),
	}

	transport := IOTransport(rwc)
	for _, chunk := range []string{`{"id":1}`, `[{"id":2},{"id":3}]`} {
		if err := transport.WriteChunk([]byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := buf.String(), "{\"id\":1}\n[{\"id\":2},{\"id\":3}]\n"; got != want {
		t.Errorf("wrong wire payload:\n   got: %q\n  want: %q", got, want)
	}

	for _, want := range []string{`{"id":1}`, `[{"id":2},{"id":3}]`} {
		got, err := transport.ReadChunk()
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("got: %q; want %q", got, want)
		}
	}
	if _, err := transport.ReadChunk(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestIOTransportMaxChunk(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`{"id":"this line is too long"}` + "\n")
	transport := IOTransport(struct {
		io.Reader
		io.Writer
		io.Closer
	}{&buf, &buf, ioutil.NopCloser(&buf)})
	transport.MaxChunk = 8
	if _, err := transport.ReadChunk(); err != ErrChunkTooLarge {
		t.Errorf("expected ErrChunkTooLarge, got %v", err)
	}
}

func TestPipeTransport(t *testing.T) {
	t1, t2 := PipeTransport()
	defer t1.Close()
	defer t2.Close()

	go t1.WriteChunk([]byte("hello"))
	got, err := t2.ReadChunk()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got: %q; want %q", got, "hello")
	}
}
