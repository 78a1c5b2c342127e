package planner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telefetch-project/telefetch/internal/media"
)

func progressive(id string, height int, fps, tbr float64, size int64) media.Format {
	return media.Format{
		FormatID: id, Ext: "mp4", VCodec: "avc1", ACodec: "mp4a",
		Height: height, FPS: fps, TBR: tbr, Filesize: size,
	}
}

func videoOnly(id string, height int, fps, tbr float64, size int64) media.Format {
	return media.Format{
		FormatID: id, Ext: "mp4", VCodec: "avc1", ACodec: "none",
		Height: height, FPS: fps, TBR: tbr, Filesize: size,
	}
}

func audioOnly(id string, abr float64, size int64) media.Format {
	return media.Format{
		FormatID: id, Ext: "m4a", VCodec: "none", ACodec: "mp4a",
		ABR: abr, Filesize: size,
	}
}

func TestSelectCandidateProgressiveWins(t *testing.T) {
	meta := &media.Metadata{
		Duration: 60,
		Formats: []media.Format{
			videoOnly("299", 1080, 60, 4000, 30_000_000),
			audioOnly("140", 128, 1_000_000),
			progressive("22", 720, 30, 1500, 12_000_000),
		},
	}

	cand := SelectCandidate(meta)
	assert.Equal(t, KindSingleFile, cand.Kind)
	assert.Equal(t, "22", cand.FetchSpec)
	assert.True(t, cand.Confident)
	assert.Equal(t, int64(12_000_000), cand.EstimatedSize)
}

func TestSelectCandidateTupleOrdering(t *testing.T) {
	meta := &media.Metadata{
		Formats: []media.Format{
			progressive("a", 720, 30, 1500, 1),
			progressive("b", 1080, 30, 1000, 1), // higher resolution wins over bitrate
			progressive("c", 1080, 60, 800, 1),  // then frame rate
			progressive("d", 1080, 60, 900, 1),  // then bitrate
		},
	}

	cand := SelectCandidate(meta)
	assert.Equal(t, "d", cand.FetchSpec)
}

func TestSelectCandidateFirstWinsOnTie(t *testing.T) {
	meta := &media.Metadata{
		Formats: []media.Format{
			progressive("first", 720, 30, 1500, 1),
			progressive("second", 720, 30, 1500, 1),
		},
	}

	cand := SelectCandidate(meta)
	assert.Equal(t, "first", cand.FetchSpec)
}

func TestSelectCandidatePairedStreams(t *testing.T) {
	meta := &media.Metadata{
		Duration: 120,
		Formats: []media.Format{
			videoOnly("137", 1080, 30, 4000, 40_000_000),
			videoOnly("136", 720, 30, 2000, 20_000_000),
			audioOnly("140", 128, 2_000_000),
			audioOnly("139", 48, 800_000),
		},
	}

	cand := SelectCandidate(meta)
	require.Equal(t, KindPairedStreams, cand.Kind)
	assert.Equal(t, "137+140", cand.FetchSpec)
	assert.Equal(t, "mp4", cand.MergeHint)
	assert.True(t, cand.Confident)
	assert.Equal(t, int64(42_000_000), cand.EstimatedSize)
}

func TestSelectCandidatePairedDerivedNotConfident(t *testing.T) {
	meta := &media.Metadata{
		Duration: 100,
		Formats: []media.Format{
			{FormatID: "137", Ext: "mp4", VCodec: "avc1", ACodec: "none", Height: 1080, TBR: 4000, URL: "https://v.example/137"},
			{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a", ABR: 128, TBR: 128, URL: "https://v.example/140"},
		},
	}

	cand := SelectCandidate(meta)
	require.Equal(t, KindPairedStreams, cand.Kind)
	assert.False(t, cand.Confident)
	assert.Len(t, cand.ProbeTargets, 2)
	// tbr-derived: (4000+128) kbit/s over 100s
	assert.Equal(t, int64(4000*1000/8*100+128*1000/8*100), cand.EstimatedSize)
}

func TestSelectCandidateUnresolved(t *testing.T) {
	t.Run("no formats", func(t *testing.T) {
		cand := SelectCandidate(&media.Metadata{})
		assert.Equal(t, KindUnresolved, cand.Kind)
		assert.False(t, cand.Confident)
	})

	t.Run("missing audio side", func(t *testing.T) {
		meta := &media.Metadata{Formats: []media.Format{videoOnly("137", 1080, 30, 4000, 1)}}
		cand := SelectCandidate(meta)
		assert.Equal(t, KindUnresolved, cand.Kind)
	})
}

func TestFitAudio(t *testing.T) {
	const ceiling = 50_000_000
	const headroom = 1_500_000

	t.Run("highest fitting bitrate wins", func(t *testing.T) {
		// 600s: 192kbps -> 14.4MB + headroom, well under 50MB
		plan, err := FitAudio(600, ceiling, headroom)
		require.NoError(t, err)
		assert.Equal(t, 192, plan.Bitrate)
		assert.Equal(t, int64(600*192*1000/8+headroom), plan.EstimatedSize)
	})

	t.Run("ladder walks down for long media", func(t *testing.T) {
		// 3600s: 192kbps = 86.4MB fails, 96kbps = 43.2MB fits
		plan, err := FitAudio(3600, ceiling, headroom)
		require.NoError(t, err)
		assert.Equal(t, 96, plan.Bitrate)
	})

	t.Run("nothing fits", func(t *testing.T) {
		// 14000s at 32kbps = 56MB, still over the ceiling
		plan, err := FitAudio(14000, ceiling, headroom)
		assert.Nil(t, plan)
		assert.ErrorIs(t, err, ErrAudioTooLarge)
	})

	t.Run("unknown duration", func(t *testing.T) {
		plan, err := FitAudio(0, ceiling, headroom)
		assert.Nil(t, plan)
		assert.ErrorIs(t, err, ErrUnknownDuration)
	})
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		header string
		want   int64
		ok     bool
	}{
		{"bytes 0-0/12345678", 12345678, true},
		{"bytes 0-0/*", 0, false},
		{"", 0, false},
		{"bytes 0-0", 0, false},
		{"bytes 0-0/notanumber", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseContentRangeTotal(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestProberConfirm(t *testing.T) {
	newServer := func(handler http.HandlerFunc) *httptest.Server {
		return httptest.NewServer(handler)
	}

	t.Run("all targets confirmed and summed", func(t *testing.T) {
		srv := newServer(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
			w.Header().Set("Content-Range", "bytes 0-0/10000000")
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte{0})
		})
		defer srv.Close()

		prober := NewProber(2*time.Second, nil)
		cand := Candidate{
			Kind:         KindPairedStreams,
			ProbeTargets: []string{srv.URL + "/video", srv.URL + "/audio"},
		}

		confirmed := prober.Confirm(context.Background(), cand)
		assert.True(t, confirmed.Confident)
		assert.Equal(t, int64(20_000_000), confirmed.EstimatedSize)
		// the original is rebuilt, not mutated
		assert.False(t, cand.Confident)
	})

	t.Run("content-length fallback only when large", func(t *testing.T) {
		srv := newServer(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "5000000")
			w.WriteHeader(http.StatusOK)
		})
		defer srv.Close()

		prober := NewProber(2*time.Second, nil)
		cand := Candidate{Kind: KindSingleFile, ProbeTargets: []string{srv.URL}}

		confirmed := prober.Confirm(context.Background(), cand)
		assert.True(t, confirmed.Confident)
		assert.Equal(t, int64(5_000_000), confirmed.EstimatedSize)
	})

	t.Run("small content-length is not trusted", func(t *testing.T) {
		srv := newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte{0})
		})
		defer srv.Close()

		prober := NewProber(2*time.Second, nil)
		cand := Candidate{Kind: KindSingleFile, ProbeTargets: []string{srv.URL}}

		confirmed := prober.Confirm(context.Background(), cand)
		assert.False(t, confirmed.Confident)
	})

	t.Run("one failing target keeps the plan unconfident", func(t *testing.T) {
		srv := newServer(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/bad" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Range", "bytes 0-0/10000000")
			w.WriteHeader(http.StatusPartialContent)
		})
		defer srv.Close()

		prober := NewProber(2*time.Second, nil)
		cand := Candidate{
			Kind:          KindPairedStreams,
			EstimatedSize: 123,
			ProbeTargets:  []string{srv.URL + "/good", srv.URL + "/bad"},
		}

		confirmed := prober.Confirm(context.Background(), cand)
		assert.False(t, confirmed.Confident)
		assert.Equal(t, int64(123), confirmed.EstimatedSize)
	})

	t.Run("already confident passes through", func(t *testing.T) {
		prober := NewProber(2*time.Second, nil)
		cand := Candidate{Confident: true, EstimatedSize: 42, ProbeTargets: []string{"http://127.0.0.1:1/unreachable"}}
		assert.Equal(t, cand, prober.Confirm(context.Background(), cand))
	})
}

func TestBuildDecisionGate(t *testing.T) {
	cfg := Config{MaxSendBytes: 50_000_000, AudioHeadroomBytes: 1_500_000, ProbeTimeout: time.Second}

	t.Run("confident and under ceiling offers everything", func(t *testing.T) {
		p := New(cfg, nil)
		meta := &media.Metadata{
			Duration: 300,
			Formats:  []media.Format{progressive("22", 720, 30, 1500, 30_000_000)},
		}

		d := p.BuildDecision(context.Background(), meta)
		require.NotNil(t, d.Video)
		require.NotNil(t, d.Audio)
		assert.True(t, d.Video.Confident)
	})

	t.Run("confident but over ceiling refuses video, offers audio", func(t *testing.T) {
		p := New(cfg, nil)
		meta := &media.Metadata{
			Duration: 300,
			Formats:  []media.Format{progressive("22", 720, 30, 1500, 80_000_000)},
		}

		d := p.BuildDecision(context.Background(), meta)
		assert.Nil(t, d.Video)
		assert.Contains(t, d.VideoRefusalNote, "over the")
		assert.NotNil(t, d.Audio)
	})

	t.Run("unconfident is refused regardless of estimate", func(t *testing.T) {
		p := New(cfg, nil)
		meta := &media.Metadata{
			Duration: 300,
			Formats: []media.Format{
				// tiny derived estimate, still refused: no proof
				{FormatID: "22", Ext: "mp4", VCodec: "avc1", ACodec: "mp4a", Height: 720, TBR: 100},
			},
		}

		d := p.BuildDecision(context.Background(), meta)
		assert.Nil(t, d.Video)
		assert.Contains(t, d.VideoRefusalNote, "confirm")
		assert.NotNil(t, d.Audio)
	})

	t.Run("unresolved refuses video", func(t *testing.T) {
		p := New(cfg, nil)
		meta := &media.Metadata{Duration: 300}

		d := p.BuildDecision(context.Background(), meta)
		assert.Nil(t, d.Video)
		assert.NotNil(t, d.Audio)
		assert.True(t, d.HasAnyOption())
	})

	t.Run("nothing offered at all", func(t *testing.T) {
		p := New(cfg, nil)
		meta := &media.Metadata{Duration: 0}

		d := p.BuildDecision(context.Background(), meta)
		assert.Nil(t, d.Video)
		assert.Nil(t, d.Audio)
		assert.False(t, d.HasAnyOption())
		assert.Equal(t, ErrUnknownDuration.Error(), d.AudioRefusalNote)
	})
}

func TestQualityLabel(t *testing.T) {
	assert.Equal(t, "720p", qualityLabel(&media.Format{Height: 720, FPS: 30}))
	assert.Equal(t, "1080p60", qualityLabel(&media.Format{Height: 1080, FPS: 60}))
	assert.Equal(t, "best", qualityLabel(&media.Format{}))
}
