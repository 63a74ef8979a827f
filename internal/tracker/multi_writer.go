package tracker

import (
	"errors"

	"courierwatch/internal/telemetry"
)

// MultiWriter fans publications and reports out to several writers.
type MultiWriter struct {
	writers []PublicationWriter
}

// NewMultiWriter creates a new MultiWriter. Nil writers are skipped.
func NewMultiWriter(ws ...PublicationWriter) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// Len returns the number of wrapped writers.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WritePublication sends p to every writer. A failing writer does not stop the others.
func (mw *MultiWriter) WritePublication(p Publication) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WritePublication(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteReports forwards reports to the writers that record them.
func (mw *MultiWriter) WriteReports(reports []telemetry.Report) error {
	var errs []error
	for _, w := range mw.writers {
		if rw, ok := w.(ReportWriter); ok {
			if err := rw.WriteReports(reports); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer that holds resources.
func (mw *MultiWriter) Close() error {
	var errs []error
	for _, w := range mw.writers {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
