package repository

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/NamanBalaji/vodbatch/internal/filesystem"
)

const recordExt = ".filename"

// ErrRecordNotFound is returned when an id has no Filename Record.
var ErrRecordNotFound = errors.New("filename record not found")

// Options are the formatting flags a display name was built with.
type Options struct {
	IncludeDate bool   `json:"includeDate"`
	IncludeType bool   `json:"includeType"`
	VideoType   string `json:"videoType,omitempty"`
	Date        string `json:"date,omitempty"`
}

// FilenameRecord maps a media id to the user's display name.
type FilenameRecord struct {
	ID          string
	DisplayName string
	Options     Options
}

// RecordStore keeps one sidecar file per media id in the working directory:
// the display name on the first line, the JSON options on the second.
type RecordStore struct {
	dir *filesystem.WorkDir
}

func NewRecordStore(dir *filesystem.WorkDir) *RecordStore {
	return &RecordStore{dir: dir}
}

// Path returns the sidecar path for id.
func (s *RecordStore) Path(id string) (string, error) {
	return s.dir.Path(id + recordExt)
}

// Save writes the record atomically.
func (s *RecordStore) Save(rec FilenameRecord) error {
	path, err := s.Path(rec.ID)
	if err != nil {
		return err
	}

	opts, err := json.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	name := filesystem.Sanitize(rec.DisplayName)

	var buf bytes.Buffer
	buf.WriteString(name)
	buf.WriteByte('\n')
	buf.Write(opts)
	buf.WriteByte('\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write filename record: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit filename record: %w", err)
	}

	return nil
}

// Find reads the record for id. A record with an unparseable options line
// still yields its display name.
func (s *RecordStore) Find(id string) (FilenameRecord, error) {
	path, err := s.Path(id)
	if err != nil {
		return FilenameRecord{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FilenameRecord{}, ErrRecordNotFound
		}
		return FilenameRecord{}, err
	}
	defer f.Close()

	rec := FilenameRecord{ID: id}

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		rec.DisplayName = filesystem.Sanitize(sc.Text())
	}
	if sc.Scan() {
		_ = json.Unmarshal(sc.Bytes(), &rec.Options)
	}
	if err := sc.Err(); err != nil {
		return FilenameRecord{}, fmt.Errorf("failed to read filename record: %w", err)
	}

	if rec.DisplayName == "" {
		return FilenameRecord{}, ErrRecordNotFound
	}

	return rec, nil
}

// Delete removes the record for id; a missing record is not an error.
func (s *RecordStore) Delete(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}

	return s.dir.Remove(path)
}
