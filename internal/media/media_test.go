package media

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want ProgressUpdate
		ok   bool
	}{
		{
			name: "downloading with byte totals",
			line: "TFPROG|1048576|4194304|NA|NA|NA|downloading",
			want: ProgressUpdate{DownloadedBytes: 1048576, TotalBytes: 4194304},
			ok:   true,
		},
		{
			name: "fragmented download",
			line: "TFPROG|500000|NA|8000000|12|48|downloading",
			want: ProgressUpdate{DownloadedBytes: 500000, TotalBytesEstimate: 8000000, FragmentIndex: 12, FragmentCount: 48},
			ok:   true,
		},
		{
			name: "finished line",
			line: "TFPROG|4194304|4194304|NA|NA|NA|finished",
			want: ProgressUpdate{DownloadedBytes: 4194304, TotalBytes: 4194304, Finished: true},
			ok:   true,
		},
		{
			name: "float byte counts",
			line: "TFPROG|1234.5|NA|5678.9|NA|NA|downloading",
			want: ProgressUpdate{DownloadedBytes: 1234, TotalBytesEstimate: 5678},
			ok:   true,
		},
		{
			name: "ordinary yt-dlp output",
			line: "[download] Destination: 1700000000000.video.mp4",
			ok:   false,
		},
		{
			name: "malformed field count",
			line: "TFPROG|1|2|3",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgressLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormatStreamChecks(t *testing.T) {
	video := Format{VCodec: "avc1.64001f", ACodec: "none"}
	audio := Format{VCodec: "none", ACodec: "mp4a.40.2"}
	both := Format{VCodec: "avc1", ACodec: "mp4a"}

	assert.True(t, video.HasVideo())
	assert.False(t, video.HasAudio())
	assert.False(t, audio.HasVideo())
	assert.True(t, audio.HasAudio())
	assert.True(t, both.HasVideo())
	assert.True(t, both.HasAudio())
}

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return path
}

func TestFindByPrefix(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "1700000000000.video.mp4", 10)
	b := writeFile(t, dir, "1700000000000.video.mp4.part", 5)
	writeFile(t, dir, "1799999999999.other.mp4", 10)

	files, err := FindByPrefix(dir, "1700000000000")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, files)
}

func TestNewJobPrefixUnique(t *testing.T) {
	seen := make(map[string]bool)
	var length int
	for i := 0; i < 100; i++ {
		prefix := NewJobPrefix()
		assert.False(t, seen[prefix], "prefix %s repeated", prefix)
		seen[prefix] = true

		_, err := strconv.ParseInt(prefix, 10, 64)
		assert.NoError(t, err, "prefix %s is not numeric", prefix)
		if length == 0 {
			length = len(prefix)
		}
		// Equal width keeps prefixes disjoint under HasPrefix matching.
		assert.Len(t, prefix, length)
	}
}

func TestPickArtifact(t *testing.T) {
	dir := t.TempDir()
	mp3 := writeFile(t, dir, "j.audio.mp3", 100)
	older := writeFile(t, dir, "j.video.f137.mp4", 1000)
	newer := writeFile(t, dir, "j.video.mp4", 500)

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	t.Run("prefers extension when asked", func(t *testing.T) {
		assert.Equal(t, mp3, PickArtifact([]string{older, newer, mp3}, ".mp3"))
	})

	t.Run("newest wins otherwise", func(t *testing.T) {
		assert.Equal(t, newer, PickArtifact([]string{older, newer}, ""))
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", PickArtifact(nil, ".mp3"))
	})
}

func TestCleanupPrefix(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1700000000000.video.mp4", 10)
	writeFile(t, dir, "1700000000000.video.f137.mp4.part", 10)
	keep := writeFile(t, dir, "1799999999999.keep.mp4", 10)

	CleanupPrefix(dir, "1700000000000")

	remaining, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, filepath.Base(keep), remaining[0].Name())
}
