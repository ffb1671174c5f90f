package history

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"btc-direction/internal/market"

	"github.com/rs/zerolog/log"
)

var timeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
}

// CSVSource reads a price history export. The header must name a time column
// ("timestamp" or "date") and a price column ("price" or "close").
type CSVSource struct {
	path string
}

func NewCSV(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) History(ctx context.Context) ([]market.Observation, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, unavailable("failed to open CSV file: %v", err)
	}
	defer file.Close()

	obs, skipped, err := readCSV(ctx, file)
	if err != nil {
		return nil, unavailable("%s: %v", s.path, err)
	}
	if skipped > 0 {
		log.Warn().Str("file", s.path).Int("skipped", skipped).Msg("skipped malformed CSV rows")
	}
	return obs, nil
}

func readCSV(ctx context.Context, r io.Reader) ([]market.Observation, int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, errors.New("failed to read CSV header")
	}

	timeIdx, priceIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "timestamp", "date":
			if timeIdx < 0 {
				timeIdx = i
			}
		case "price", "close":
			if priceIdx < 0 {
				priceIdx = i
			}
		}
	}
	if timeIdx < 0 || priceIdx < 0 {
		return nil, 0, errors.New("CSV header needs timestamp|date and price|close columns")
	}

	var (
		obs     []market.Observation
		skipped int
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if timeIdx >= len(record) || priceIdx >= len(record) {
			skipped++
			continue
		}

		ts, err := parseTimestamp(record[timeIdx])
		if err != nil {
			skipped++
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[priceIdx]), 64)
		if err != nil {
			skipped++
			continue
		}
		obs = append(obs, market.Observation{Timestamp: ts, Price: price})
	}

	return market.Normalize(obs), skipped, nil
}

// WriteCSV writes obs in the layout CSVSource reads. The date column is for
// people; readers use the timestamp.
func WriteCSV(w io.Writer, obs []market.Observation) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp", "date", "price"}); err != nil {
		return err
	}
	for _, o := range obs {
		row := []string{
			strconv.FormatInt(o.Timestamp, 10),
			o.Time().Format("2006-01-02"),
			strconv.FormatFloat(o.Price, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func parseTimestamp(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ts, nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, v)
		if err == nil {
			return t.Unix(), nil
		}
		lastErr = err
	}
	return 0, lastErr
}
