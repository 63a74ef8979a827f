package tracker

import (
	"encoding/json"
	"errors"
	"os"

	"courierwatch/internal/telemetry"
)

// FileWriter appends received reports, alerts and courier states to JSONL files.
// The report log uses the ingestion wire format so it can be replayed.
type FileWriter struct {
	reportFile *os.File
	alertFile  *os.File
	stateFile  *os.File
	reportEnc  *json.Encoder
	alertEnc   *json.Encoder
	stateEnc   *json.Encoder
}

// NewFileWriter creates a FileWriter. Any path may be empty to skip that log.
func NewFileWriter(reportPath, alertPath, statePath string) (*FileWriter, error) {
	fw := &FileWriter{}
	open := func(path string) (*os.File, *json.Encoder, error) {
		if path == "" {
			return nil, nil, nil
		}
		f, err := os.Create(path)
		if err != nil {
			fw.Close()
			return nil, nil, err
		}
		return f, json.NewEncoder(f), nil
	}
	var err error
	if fw.reportFile, fw.reportEnc, err = open(reportPath); err != nil {
		return nil, err
	}
	if fw.alertFile, fw.alertEnc, err = open(alertPath); err != nil {
		return nil, err
	}
	if fw.stateFile, fw.stateEnc, err = open(statePath); err != nil {
		return nil, err
	}
	return fw, nil
}

// WriteReports logs reports in wire format, if enabled.
func (f *FileWriter) WriteReports(reports []telemetry.Report) error {
	if f.reportEnc == nil {
		return nil
	}
	for _, r := range reports {
		if err := f.reportEnc.Encode(r.Wire()); err != nil {
			return err
		}
	}
	return nil
}

// WritePublication logs one alert row per alert and one state row per courier.
func (f *FileWriter) WritePublication(p Publication) error {
	if f.alertEnc != nil {
		for _, row := range AlertRows(p) {
			if err := f.alertEnc.Encode(row); err != nil {
				return err
			}
		}
	}
	if f.stateEnc != nil {
		for _, row := range StateRows(p) {
			if err := f.stateEnc.Encode(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var errs []error
	for _, file := range []*os.File{f.reportFile, f.alertFile, f.stateFile} {
		if file != nil {
			errs = append(errs, file.Close())
		}
	}
	return errors.Join(errs...)
}
