package tracing

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// JSONWriter appends FireRecords to a newline-delimited JSON file,
// writing each record as it arrives and closing the file on process
// exit.
type JSONWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONWriter creates the backing file named by a fresh xid and
// registers an atexit hook to close it.
func NewJSONWriter() (*JSONWriter, error) {
	name := xid.New().String() + ".json"
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("tracing: create json trace file: %w", err)
	}

	w := &JSONWriter{file: f, enc: json.NewEncoder(f)}
	atexit.Register(w.close)
	return w, nil
}

// Write appends a single FireRecord as one JSON line.
func (w *JSONWriter) Write(rec FireRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(rec)
}

func (w *JSONWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.file.Close()
}
