package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrUnresolved = errors.New("could not resolve audio path")

// Resolve maps a table reference to an existing regular file. The reference is
// tried as given (absolute or cwd-relative), then relative to tableDir.
func Resolve(raw, tableDir string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnresolved)
	}
	if abs, err := filepath.Abs(raw); err == nil && isFile(abs) {
		return abs, nil
	}
	if !filepath.IsAbs(raw) && tableDir != "" {
		joined, err := filepath.Abs(filepath.Join(tableDir, raw))
		if err == nil && isFile(joined) {
			return joined, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnresolved, raw)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
