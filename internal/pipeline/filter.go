package pipeline

import (
	"path/filepath"
	"strings"
)

// ShouldIgnore reports whether any segment of path matches one of the
// patterns in ignoreList.
func ShouldIgnore(path string, ignoreList []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")

	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		for _, pattern := range ignoreList {
			matched, err := filepath.Match(pattern, part)
			if err == nil && matched {
				return true
			}
		}
	}

	return false
}

func Filter(inCh <-chan string, ignoreList []string) <-chan string {
	outCh := make(chan string, cap(inCh))

	go func() {
		defer close(outCh)

		for path := range inCh {
			if ShouldIgnore(path, ignoreList) {
				continue
			}
			outCh <- path
		}
	}()

	return outCh
}
