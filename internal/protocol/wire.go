// Wire framing for the lexcache protocol.
//
// Messages are newline-delimited JSON objects over a persistent byte
// stream. This keeps the protocol inspectable from a terminal and lets
// existing JSON-speaking clients connect with minimal effort.
package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	"github.com/lexcache/lexcache/config"
)

// Reader reads newline-delimited JSON messages from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r  *bufio.Reader
	mu sync.Mutex

	maxSize int
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, config.DefaultMaxMessageSize)
}

// NewReaderSize creates a Reader with a custom message size limit.
func NewReaderSize(r io.Reader, maxSize int) *Reader {
	return &Reader{
		r:       bufio.NewReader(r),
		maxSize: maxSize,
	}
}

// Read returns the next raw message, without the trailing newline.
// Returns an error if the message exceeds the size limit.
func (r *Reader) Read() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var buf bytes.Buffer
	for {
		chunk, err := r.r.ReadSlice('\n')
		buf.Write(chunk)
		if buf.Len() > r.maxSize {
			return nil, fmt.Errorf("message exceeds %d bytes", r.maxSize)
		}
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			return nil, err
		}
	}

	line := bytes.TrimRight(buf.Bytes(), "\r\n")
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}

// Writer writes newline-delimited JSON messages to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write marshals v and writes it as one line.
func (w *Writer) Write(v interface{}) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	return w.WriteRaw(data)
}

// WriteRaw writes an already-encoded message as one line.
func (w *Writer) WriteRaw(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if _, err := w.w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("write delimiter: %w", err)
	}
	return nil
}

// Conn combines Reader and Writer for bidirectional communication.
type Conn struct {
	*Reader
	*Writer
}

// NewConn creates a Conn from an io.ReadWriter (e.g., net.Conn).
func NewConn(rw io.ReadWriter) *Conn {
	return NewConnSize(rw, config.DefaultMaxMessageSize)
}

// NewConnSize creates a Conn with a custom message size limit.
func NewConnSize(rw io.ReadWriter, maxSize int) *Conn {
	return &Conn{
		Reader: NewReaderSize(rw, maxSize),
		Writer: NewWriter(rw),
	}
}

// Marshal encodes a message.
func Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a message into v.
func Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
