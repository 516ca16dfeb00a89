// Package series reads solar and signal time series from CSV files.
//
// The first row is a header. solar_mw is required; price,
// frequency_deviation_hz and request_mw are optional. Other columns, such as
// a timestamp, are ignored.
package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kilianp07/bessim/core/model"
)

// Column names.
const (
	ColSolar     = "solar_mw"
	ColPrice     = "price"
	ColFrequency = "frequency_deviation_hz"
	ColRequest   = "request_mw"
)

// Series is the content of one file.
type Series struct {
	Inputs model.Inputs
	// Requests drives dynamic-control runs. Nil when the column is absent.
	Requests []float64
}

// ReadFile reads the CSV file at path.
func ReadFile(path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Read parses a CSV stream.
func Read(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.Configf("series", "empty file")
	}
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx[ColSolar]; !ok {
		return nil, model.Configf("series", "missing %s column", ColSolar)
	}

	cols := map[string]*[]float64{}
	s := &Series{}
	s.Inputs.Solar = []float64{}
	cols[ColSolar] = &s.Inputs.Solar
	if _, ok := idx[ColPrice]; ok {
		s.Inputs.Price = []float64{}
		cols[ColPrice] = &s.Inputs.Price
	}
	if _, ok := idx[ColFrequency]; ok {
		s.Inputs.Frequency = []float64{}
		cols[ColFrequency] = &s.Inputs.Frequency
	}
	if _, ok := idx[ColRequest]; ok {
		s.Requests = []float64{}
		cols[ColRequest] = &s.Requests
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		for name, dst := range cols {
			col := idx[name]
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
			if err != nil {
				line, _ := cr.FieldPos(col)
				return nil, model.Configf("series", "line %d column %s: %v", line, name, err)
			}
			*dst = append(*dst, v)
		}
	}
	return s, nil
}
