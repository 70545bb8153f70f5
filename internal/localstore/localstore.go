// Package localstore keeps multi-metric series in per-key CSV files on
// disk. It backs CSV import/export and small local deployments without a
// database backend; one file per key, header "ts,<metric>,...".
package localstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cattledb/cattledb/internal/series"
)

// Store is a directory of per-key CSV files.
type Store struct {
	dataDir string
}

// New ensures dataDir exists and returns the store.
func New(dataDir string) (*Store, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		log.Printf("localstore: creating data directory %s", abs)
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	case err != nil:
		return nil, err
	case !info.IsDir():
		return nil, fmt.Errorf("localstore: %s is not a directory", abs)
	}
	return &Store{dataDir: abs}, nil
}

// FileForKey returns the CSV path of one key, creating an empty file when
// create is set.
func (s *Store) FileForKey(key string, create bool) (string, error) {
	path := filepath.Join(s.dataDir, key+".csv")
	if create {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 - path derived from data dir
		if err != nil {
			return "", err
		}
		f.Close()
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file for key %q: %w", key, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("file for key %q: %s is a directory", key, path)
	}
	return path, nil
}

// GetTimeSeries reads one key's file into a dict series with metric "multi"
// and sorted metric columns. An empty file yields an empty series.
func (s *Store) GetTimeSeries(key string) (*series.TimeSeries, error) {
	path, err := s.FileForKey(key, true)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 - path derived from data dir
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSVSeries(key, f)
}

func readCSVSeries(key string, r io.Reader) (*series.TimeSeries, error) {
	ts := series.NewDict(key, "multi")
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return ts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv for %q: %w", key, err)
	}
	if len(header) == 0 || header[0] != "ts" {
		return nil, fmt.Errorf("csv for %q: first column must be \"ts\"", key)
	}

	metrics := map[string]bool{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv for %q: %w", key, err)
		}
		when, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv for %q: bad timestamp %q", key, record[0])
		}
		values := map[string]any{}
		for i := 1; i < len(record) && i < len(header); i++ {
			if record[i] == "" {
				continue
			}
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("csv for %q: bad value %q in column %q", key, record[i], header[i])
			}
			values[header[i]] = v
			metrics[header[i]] = true
		}
		if _, err := ts.Insert(when, 0, series.Dict(values), true); err != nil {
			return nil, err
		}
	}

	columns := make([]string, 0, len(metrics))
	for m := range metrics {
		columns = append(columns, m)
	}
	sort.Strings(columns)
	ts.SetColumns(columns)
	return ts, nil
}

// StoreTimeSeries writes one dict series to its key's file, replacing the
// previous content.
func (s *Store) StoreTimeSeries(ts *series.TimeSeries) error {
	path, err := s.FileForKey(ts.Key(), true)
	if err != nil {
		return err
	}
	f, err := os.Create(path) // #nosec G304 - path derived from data dir
	if err != nil {
		return err
	}
	if err := ts.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// InsertMeasurement merges one measurement row into a key's file: read,
// insert, extend the column set, write back.
func (s *Store) InsertMeasurement(key string, when int64, values map[string]float64) error {
	data, err := s.GetTimeSeries(key)
	if err != nil {
		return err
	}
	metrics := map[string]bool{}
	for _, c := range data.Columns() {
		metrics[c] = true
	}
	row := map[string]any{}
	for k, v := range values {
		row[k] = v
		metrics[k] = true
	}
	if _, err := data.Insert(when, 0, series.Dict(row), true); err != nil {
		return err
	}
	columns := make([]string, 0, len(metrics))
	for m := range metrics {
		columns = append(columns, m)
	}
	sort.Strings(columns)
	data.SetColumns(columns)
	return s.StoreTimeSeries(data)
}
