package blobsync

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/openmined/blobsync/internal/utils"
)

// Scan enumerates files under baseDir matching the include glob patterns,
// minus anything matching an exclude pattern. Results are forward-slash
// relative paths in sorted order. With no include patterns everything is
// scanned.
func Scan(baseDir string, include, exclude []string) ([]string, error) {
	if len(include) == 0 {
		include = []string{"**"}
	}

	fsys := os.DirFS(baseDir)
	seen := make(map[string]struct{})

	for _, pattern := range include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob '%s': %w", pattern, err)
		}
		for _, match := range matches {
			if isExcluded(match, exclude) {
				continue
			}
			seen[utils.NormPath(match)] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

func isExcluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, name)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
