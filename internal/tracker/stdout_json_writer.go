package tracker

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONStdoutWriter prints alert and state rows as JSON lines.
type JSONStdoutWriter struct {
	out    io.Writer
	states bool
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout. With
// states set, courier state rows are printed after the alerts.
func NewJSONStdoutWriter(states bool) *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout, states: states}
}

// WritePublication outputs the publication rows in JSON format.
func (w *JSONStdoutWriter) WritePublication(p Publication) error {
	for _, row := range AlertRows(p) {
		data, _ := json.Marshal(row)
		fmt.Fprintln(w.out, string(data))
	}
	if !w.states {
		return nil
	}
	for _, row := range StateRows(p) {
		data, _ := json.Marshal(row)
		fmt.Fprintln(w.out, string(data))
	}
	return nil
}
