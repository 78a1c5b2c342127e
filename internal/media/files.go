package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

var prefixSeq atomic.Int64

// NewJobPrefix returns a numeric per-job filename prefix. Every file a
// job produces starts with this prefix, so cleanup can sweep them all.
// A process-wide sequence number keeps prefixes distinct even for jobs
// accepted in the same millisecond; the fixed width means no prefix is
// a prefix of another.
func NewJobPrefix() string {
	seq := prefixSeq.Add(1) % 1000
	return fmt.Sprintf("%d%03d", time.Now().UnixMilli(), seq)
}

// FindByPrefix returns all regular files in dir whose name starts with
// the given prefix.
func FindByPrefix(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	return matches, nil
}

// PickArtifact selects the delivered file among a job's outputs.
// When preferExt is set (e.g. ".mp3" for audio jobs) a file with that
// extension wins; otherwise the newest file is taken, since merge and
// post-processing output always lands after the intermediate streams.
func PickArtifact(files []string, preferExt string) string {
	if len(files) == 0 {
		return ""
	}

	if preferExt != "" {
		for _, f := range files {
			if strings.EqualFold(filepath.Ext(f), preferExt) {
				return f
			}
		}
	}

	var best string
	var bestTime time.Time
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = f
			bestTime = info.ModTime()
		}
	}
	return best
}

// CleanupPrefix removes every file in dir carrying the job prefix.
// Errors on individual files are ignored; cleanup is best effort.
func CleanupPrefix(dir, prefix string) {
	files, err := FindByPrefix(dir, prefix)
	if err != nil {
		return
	}
	for _, f := range files {
		os.Remove(f)
	}
}
