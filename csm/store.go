package csm

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/knadh/koanf"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
)

// DefaultDataFile is the conventional name of the calibration record.
const DefaultDataFile = "csm_calibration.json"

// Store persists the calibration record as a single JSON file.  The record
// is read wholesale and written wholesale; writes go to a temporary file
// in the same directory followed by a rename, so a crash never leaves a
// partial record behind.
type Store struct {
	Path string
}

// Save atomically replaces any prior record with c.
func (s *Store) Save(c Calibration) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

// Exists reports whether a record has been saved.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load reads and validates the persisted record.  A missing file means the
// microscope has not been calibrated; that and any malformed record fail
// with a CalibrationError.
func (s *Store) Load() (Calibration, error) {
	var c Calibration
	if !s.Exists() {
		return c, &CalibrationError{Reason: "no calibration has been saved"}
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(s.Path), kjson.Parser()); err != nil {
		return c, &CalibrationError{Reason: fmt.Sprintf("record unreadable: %v", err)}
	}
	if err := k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return c, &CalibrationError{Reason: fmt.Sprintf("record malformed: %v", err)}
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}
