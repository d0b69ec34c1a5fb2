package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/model"
)

// dateRange parses YYYY-MM-DD start and end values. A missing end means
// tomorrow so that today's bar is included; a missing start means
// DefaultLookback before end.
func (s *Server) dateRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr == "" {
		y, m, d := s.now().Date()
		end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	} else if end, err = time.Parse(model.DateLayout, endStr); err != nil {
		return start, end, fmt.Errorf("%w: end %q", errBadParam, endStr)
	}
	if startStr == "" {
		start = end.Add(-s.cfg.DefaultLookback)
	} else if start, err = time.Parse(model.DateLayout, startStr); err != nil {
		return start, end, fmt.Errorf("%w: start %q", errBadParam, startStr)
	}
	if !start.Before(end) {
		return start, end, fmt.Errorf("%w: start must be before end", errBadParam)
	}
	return start, end, nil
}

// settingsFromQuery overlays query parameters on the default indicator settings.
func (s *Server) settingsFromQuery(c *gin.Context) (calculator.Settings, error) {
	st := s.cfg.Indicators
	ints := []struct {
		key string
		dst *int
	}{
		{"bb_window", &st.BollingerWindow},
		{"rsi_window", &st.RSIWindow},
		{"macd_fast", &st.MACDFast},
		{"macd_slow", &st.MACDSlow},
		{"macd_signal", &st.MACDSignal},
	}
	for _, p := range ints {
		if v, ok := c.GetQuery(p.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return st, fmt.Errorf("%w: %s=%q", errBadParam, p.key, v)
			}
			*p.dst = n
		}
	}
	if v, ok := c.GetQuery("bb_dev"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return st, fmt.Errorf("%w: bb_dev=%q", errBadParam, v)
		}
		st.BollingerDeviations = f
	}
	var err error
	if v, ok := c.GetQuery("sma"); ok {
		if st.SMAWindows, err = parseWindows("sma", v); err != nil {
			return st, err
		}
	}
	if v, ok := c.GetQuery("ema"); ok {
		if st.EMAWindows, err = parseWindows("ema", v); err != nil {
			return st, err
		}
	}
	return st, nil
}

func parseWindows(key, v string) ([]int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", errBadParam, key, v)
		}
		out = append(out, n)
	}
	return out, nil
}
