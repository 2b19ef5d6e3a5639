package vast

import (
	"math"
	"strconv"
	"strings"
)

// maxTimecode bounds any duration or offset read from a descriptor
const maxTimecode = 24 * 60 * 60

// parseTimecode reads HH:MM:SS or HH:MM:SS.mmm into seconds
func parseTimecode(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		// Some ad servers send plain seconds
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || !validSeconds(v) {
			return 0, false
		}
		return v, true
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || !validSeconds(sec) || sec >= 60 {
		return 0, false
	}
	if h > maxTimecode/3600 {
		return 0, false
	}
	v := float64(h*3600+m*60) + sec
	if v > maxTimecode {
		return 0, false
	}
	return v, true
}

func validSeconds(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= maxTimecode
}

// parseOffset reads a skipoffset, either a timecode or a percentage of duration
func parseOffset(s string, duration float64) (float64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "%") {
		pct, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil || pct < 0 || pct > 100 || duration <= 0 {
			return 0, false
		}
		return duration * pct / 100, true
	}
	return parseTimecode(s)
}
