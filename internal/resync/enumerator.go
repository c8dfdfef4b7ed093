package resync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const signalFileName = "reenumerate.signal"

// FileSignalEnumerator signals the file-presentation process by
// publishing a signal file in the shared directory. The other process
// watches the directory the same way AwaitEnumerationDone does.
type FileSignalEnumerator struct {
	dir string
}

func NewFileSignalEnumerator(dir string) *FileSignalEnumerator {
	return &FileSignalEnumerator{dir: dir}
}

// SignalEnumerator publishes a fresh signal file. The content is the
// signal time so repeated signals always change the file.
func (e *FileSignalEnumerator) SignalEnumerator(_ context.Context) error {
	tmp, err := os.CreateTemp(e.dir, signalFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating signal file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(strconv.FormatInt(time.Now().UnixNano(), 10)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing signal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing signal file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(e.dir, signalFileName)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publishing signal file: %w", err)
	}
	return nil
}
