package singer

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Matatika/tap-shopify/pkg/errors"
	"github.com/Matatika/tap-shopify/pkg/json"
)

// Writer writes Singer messages as JSON lines. It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.LineEncoder

	records int64
	states  int64
}

// NewWriter creates a Writer with a write buffer of bufSize bytes.
func NewWriter(w io.Writer, bufSize int) *Writer {
	if bufSize <= 0 {
		bufSize = 4096
	}
	buf := bufio.NewWriterSize(w, bufSize)
	return &Writer{
		buf: buf,
		enc: json.NewLineEncoder(buf),
	}
}

// WriteSchema writes a SCHEMA message.
func (w *Writer) WriteSchema(msg *SchemaMessage) error {
	return w.write(msg)
}

// WriteRecord writes a RECORD message. Decimal values are written as JSON
// numbers.
func (w *Writer) WriteRecord(stream string, record map[string]interface{}, extracted time.Time) error {
	out, _ := encodeValue(record).(map[string]interface{})
	if err := w.write(NewRecordMessage(stream, out, extracted)); err != nil {
		return err
	}
	w.mu.Lock()
	w.records++
	w.mu.Unlock()
	return nil
}

// WriteState writes a STATE message and flushes, so that everything
// before the state is durable once it is seen downstream.
func (w *Writer) WriteState(state *State) error {
	if err := w.write(NewStateMessage(state)); err != nil {
		return err
	}
	w.mu.Lock()
	w.states++
	w.mu.Unlock()
	return w.Flush()
}

// Flush flushes buffered messages.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush messages")
	}
	return nil
}

// Counts returns the number of records and states written.
func (w *Writer) Counts() (records, states int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records, w.states
}

func (w *Writer) write(msg interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(msg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to write message")
	}
	return nil
}

// encodeValue copies v replacing decimals with exact JSON numbers.
func encodeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = encodeValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = encodeValue(val)
		}
		return out
	case decimal.Decimal:
		return json.Number(t.String())
	case *decimal.Decimal:
		if t == nil {
			return nil
		}
		return json.Number(t.String())
	default:
		return v
	}
}
