/*
	Package kvimport reads image metadata spreadsheets and writes each row as a key/value
	map annotation on the image named in the row.
*/
package kvimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/janelia-flyem/omerokv/omerokv"
)

// SheetOptions describes the layout of a metadata spreadsheet.
type SheetOptions struct {
	// Separator between fields.  Defaults to ','.
	Separator rune

	// SkipLines is the number of lines skipped before the header or first row.
	SkipLines int

	// Columns names the columns if the sheet has no header row.  If empty, the
	// first row after the skipped lines is the header.
	Columns []string

	// NameColumn is the index of the column holding the image name.
	NameColumn int

	// Extra entries added before the row's own entries, e.g. Year=2020.
	Extra omerokv.KeyValues
}

// Row is the metadata for one image.
type Row struct {
	Line      int // 1-based line in the sheet
	ImageName string
	Values    omerokv.KeyValues
}

// YearFromFileName returns an extra Year entry if the file stem is a four digit year,
// as in "2021.csv".
func YearFromFileName(filename string) (omerokv.KeyValue, bool) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if len(stem) != 4 {
		return omerokv.KeyValue{}, false
	}
	for _, r := range stem {
		if r < '0' || r > '9' {
			return omerokv.KeyValue{}, false
		}
	}
	return omerokv.KeyValue{Key: "Year", Value: stem}, true
}

// ReadSheet parses a metadata spreadsheet.  Whitespace around fields is dropped and
// blank lines are ignored.  Every row must have one field per column.
func ReadSheet(r io.Reader, opts SheetOptions) ([]Row, error) {
	br := bufio.NewReader(r)
	for i := 0; i < opts.SkipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("skipping line %d: %v", i+1, err)
		}
	}
	cr := csv.NewReader(br)
	if opts.Separator != 0 {
		cr.Comma = opts.Separator
	}
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	columns := opts.Columns
	lineOffset := opts.SkipLines
	if len(columns) == 0 {
		header, err := cr.Read()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading header: %v", err)
		}
		columns = trimFields(header)
	}
	if opts.NameColumn < 0 || opts.NameColumn >= len(columns) {
		return nil, fmt.Errorf("image name column %d is outside the %d columns %v", opts.NameColumn, len(columns), columns)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading sheet after %d skipped lines: %v", lineOffset, err)
		}
		line, _ := cr.FieldPos(0)
		line += lineOffset
		fields := trimFields(record)
		if len(fields) == 1 && fields[0] == "" {
			continue
		}
		if len(fields) != len(columns) {
			return nil, fmt.Errorf("line %d has %d fields, expected %d (%s)", line, len(fields), len(columns), strings.Join(columns, ", "))
		}
		row := Row{Line: line, ImageName: fields[opts.NameColumn]}
		if row.ImageName == "" {
			return nil, fmt.Errorf("line %d has no image name", line)
		}
		row.Values = append(row.Values, opts.Extra...)
		for i, field := range fields {
			if i == opts.NameColumn {
				continue
			}
			row.Values = append(row.Values, omerokv.KeyValue{Key: columns[i], Value: field})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func trimFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
