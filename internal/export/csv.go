package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"

	"github.com/shopspring/decimal"

	"BreakoutScreener/internal/model"
)

// Precision is the number of decimal places written for prices and indicators.
const Precision = 4

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the download name for a symbol's data, e.g. "TCS.NS_data.csv".
func FileName(symbol string) string {
	return unsafeName.ReplaceAllString(symbol, "_") + "_data.csv"
}

// WriteCSV writes one row per bar: the date, OHLCV and every frame column in
// attach order. Undefined indicator values are written as empty cells.
func WriteCSV(w io.Writer, frame *model.IndicatorFrame) error {
	cw := csv.NewWriter(w)
	cols := frame.Columns()

	header := append([]string{"Date", "Open", "High", "Low", "Close", "Volume"}, cols...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	values := make([]model.Series, len(cols))
	for i, name := range cols {
		values[i], _ = frame.Column(name)
	}

	row := make([]string, len(header))
	for i, b := range frame.Bars {
		row[0] = b.Time.Format(model.DateLayout)
		row[1] = format(b.Open)
		row[2] = format(b.High)
		row[3] = format(b.Low)
		row[4] = format(b.Close)
		row[5] = decimal.NewFromFloat(b.Volume).StringFixed(0)
		for j, s := range values {
			row[6+j] = format(s[i])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func format(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(Precision)
}
