package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Journal is the per-session processing journal: one tab-separated line per
// processed record. Writes are serialized so parallel kinds can share one
// journal.
type Journal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewJournal creates a journal file for this session under dir. The
// filename carries the session start timestamp.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	name := fmt.Sprintf("session_%s.tsv", time.Now().Format("20060102_150405"))
	return &Journal{
		path: filepath.Join(dir, name),
		now:  time.Now,
	}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Record appends one line: timestamp, tip, inspection id, completed
// attachment count, semicolon-joined filenames or NONE.
func (j *Journal) Record(tip, inspectionID string, completedAttachments int, filenames []string) error {
	names := "NONE"
	if len(filenames) > 0 {
		names = strings.Join(filenames, ";")
	}
	line := fmt.Sprintf("%s\t%s\t%s\t%d\t%s\n",
		j.now().Format("2006-01-02 15:04:05"), tip, inspectionID, completedAttachments, names)

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}
