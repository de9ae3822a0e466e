package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"ubacktest/internal/domain"
)

// ResultExporter writes scored backtest results to Parquet files on disk.
type ResultExporter struct {
	DataDir string
}

// NewResultExporter creates a ResultExporter rooted at the given directory.
func NewResultExporter(dataDir string) *ResultExporter {
	return &ResultExporter{DataDir: dataDir}
}

// ResultRecord is the Parquet schema for one scored bar of a backtest run.
type ResultRecord struct {
	Timestamp          int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open               float64 `parquet:"open"`
	High               float64 `parquet:"high"`
	Low                float64 `parquet:"low"`
	Close              float64 `parquet:"close"`
	Volume             float64 `parquet:"volume"`
	Signal             float64 `parquet:"signal"`
	Return             float64 `parquet:"return"`
	Portfolio          float64 `parquet:"portfolio"`
	PortfolioWithCosts float64 `parquet:"portfolio_with_costs"`
}

// Export writes a strategy result for the given symbol. The file lands at
//
//	<DataDir>/results/<SYMBOL>/<timestamp>.parquet
//
// and the full path is returned.
func (e *ResultExporter) Export(symbol string, r *domain.StrategyResult) (string, error) {
	if r == nil || r.Len() == 0 {
		return "", fmt.Errorf("nothing to export for %s", symbol)
	}

	records := make([]ResultRecord, r.Len())
	for i := range records {
		records[i] = ResultRecord{
			Timestamp:          r.Timestamp[i] * 1000,
			Open:               r.Open[i],
			High:               r.High[i],
			Low:                r.Low[i],
			Close:              r.Close[i],
			Volume:             r.Volume[i],
			Signal:             r.Signal[i],
			Return:             r.Returns[i],
			Portfolio:          r.Portfolio[i],
			PortfolioWithCosts: r.PortfolioWithCosts[i],
		}
	}

	name := time.Now().UTC().Format("20060102-150405") + ".parquet"
	path := filepath.Join(e.DataDir, "results", strings.ToUpper(symbol), name)
	if err := writeParquetFile(path, records); err != nil {
		return "", fmt.Errorf("exporting result for %s: %w", symbol, err)
	}
	return path, nil
}

// ReadResult reads back an exported result file.
func (e *ResultExporter) ReadResult(path string) ([]ResultRecord, error) {
	return readParquetFile[ResultRecord](path)
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
