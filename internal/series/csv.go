package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// WriteCSV renders the series with UTC timestamps. A float series emits
// ts,value rows. A dict series emits one column per configured column; when
// no columns are set, the sorted union of all point keys is used.
func (s *TimeSeries) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if s.kind == FloatKind {
		if err := cw.Write([]string{"ts", s.metric}); err != nil {
			return err
		}
		for _, p := range s.points {
			rec := []string{
				strconv.FormatInt(p.TS, 10),
				strconv.FormatFloat(float64(p.Value.Float()), 'g', -1, 32),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}

	cols := s.columns
	if cols == nil {
		cols = s.unionKeys()
	}
	if err := cw.Write(append([]string{"ts"}, cols...)); err != nil {
		return err
	}
	for _, p := range s.points {
		rec := make([]string, 0, len(cols)+1)
		rec = append(rec, strconv.FormatInt(p.TS, 10))
		for _, c := range cols {
			rec = append(rec, formatCSVValue(p.Value.Dict()[c]))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *TimeSeries) unionKeys() []string {
	seen := map[string]bool{}
	for _, p := range s.points {
		for k := range p.Value.Dict() {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func formatCSVValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprintf("%v", v)
}
