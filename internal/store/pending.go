package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"markd/types"
)

const pendingFile = "pending_tasks.txt"

func (s *Store) pendingPath(certName string) string {
	return filepath.Join(s.dir, outputDir, certName, pendingFile)
}

// ReadPending returns the certificate's outstanding export tasks. A missing
// file means the queue is fully drained.
func (s *Store) ReadPending(certName string) ([]types.PendingTask, error) {
	data, err := os.ReadFile(s.pendingPath(certName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tasks []types.PendingTask
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, codeStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("malformed pending line %q", line)
		}
		code, err := strconv.Atoi(strings.TrimSpace(codeStr))
		if err != nil {
			return nil, fmt.Errorf("malformed group code in %q: %w", line, err)
		}
		tasks = append(tasks, types.PendingTask{TaskID: strings.TrimSpace(id), GroupCode: code})
	}
	return tasks, nil
}

// WritePending replaces the certificate's pending queue. An empty list
// removes the file, signalling a fully drained queue. Task creation calls
// this with the freshly created set, superseding whatever was left from a
// previous run; downloads always drain within the same scheduled cycle, so
// undrained carry-over only survives through the poller's own rewrite.
func (s *Store) WritePending(certName string, tasks []types.PendingTask) error {
	path := s.pendingPath(certName)
	if len(tasks) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove pending file: %w", err)
		}
		return nil
	}
	if _, err := s.OutputDir(certName); err != nil {
		return err
	}
	var sb strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&sb, "%s,%d\n", t.TaskID, t.GroupCode)
	}
	return writeFileAtomic(path, []byte(sb.String()))
}
