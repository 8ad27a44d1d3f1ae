package sqlite_test

import (
	"os"
	"path/filepath"
)

// readFile returns the database file plus any WAL sidecar so a plaintext scan
// sees every byte sqlite wrote.
func readFile(path string) ([]byte, error) {
	out, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for _, suffix := range []string{"-wal", "-journal"} {
		extra, err := os.ReadFile(filepath.Clean(path + suffix))
		if err == nil {
			out = append(out, extra...)
		}
	}
	return out, nil
}
