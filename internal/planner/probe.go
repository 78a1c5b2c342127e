package planner

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telefetch-project/telefetch/internal/logger"
)

// contentLengthFloor guards the Content-Length fallback: a 1-byte range
// response legitimately carries Content-Length: 1, so the header is
// only trusted as a full size when it is implausibly large for the
// partial response we asked for.
const contentLengthFloor = 1 << 20

// Prober confirms unconfident size estimates with live range requests.
type Prober struct {
	client *http.Client
	log    *logger.Logger
}

// NewProber creates a prober with the given per-request timeout.
func NewProber(timeout time.Duration, log *logger.Logger) *Prober {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Prober{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Confirm attempts to upgrade an unconfident candidate by probing every
// direct URL it exposes with a byte 0-0 range request. Only when all
// targets yield a usable total is a rebuilt, confident candidate
// returned. Any failure returns the candidate unchanged; probing is
// best effort and never makes a plan worse.
func (p *Prober) Confirm(ctx context.Context, cand Candidate) Candidate {
	if cand.Confident || len(cand.ProbeTargets) == 0 {
		return cand
	}

	var total int64
	for _, target := range cand.ProbeTargets {
		size, ok := p.probeOne(ctx, target)
		if !ok {
			p.log.Debug("size probe inconclusive, keeping unconfident estimate")
			return cand
		}
		total += size
	}

	confirmed := cand
	confirmed.EstimatedSize = total
	confirmed.Confident = true
	return confirmed
}

// probeOne fetches the first byte of the target and extracts the full
// resource size from the range response.
func (p *Prober) probeOne(ctx context.Context, target string) (int64, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, false
	}

	if size, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
		return size, true
	}

	// Content-Length is only believable as a full size when it cannot
	// be the 1-byte partial body we requested.
	if resp.ContentLength >= contentLengthFloor {
		return resp.ContentLength, true
	}
	return 0, false
}

// parseContentRangeTotal extracts the total from "bytes 0-0/12345".
func parseContentRangeTotal(header string) (int64, bool) {
	if header == "" {
		return 0, false
	}
	idx := strings.LastIndexByte(header, '/')
	if idx < 0 {
		return 0, false
	}
	totalStr := strings.TrimSpace(header[idx+1:])
	if totalStr == "" || totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(totalStr, 10, 64)
	if err != nil || total <= 0 {
		return 0, false
	}
	return total, true
}
