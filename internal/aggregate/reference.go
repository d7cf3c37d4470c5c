// Package aggregate rebuilds the language and model summary tables.
package aggregate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/franz/suno-catalog/internal/util"
)

// Reference maps two-letter language codes to English names
type Reference map[string]string

// LoadReference reads the delimited language reference file. The header
// must contain alpha2 and English; other columns are ignored.
func LoadReference(path string) (Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("language reference %s: %w", path, util.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open language reference: %w", err)
	}
	defer f.Close()

	ref, err := ParseReference(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ref, nil
}

// ParseReference reads reference rows from r
func ParseReference(r io.Reader) (Reference, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	codeIdx, nameIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) {
		case "alpha2":
			codeIdx = i
		case "English":
			nameIdx = i
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("header needs alpha2 and English columns: %w", util.ErrInvalidConfig)
	}

	ref := make(Reference)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if codeIdx >= len(row) || nameIdx >= len(row) {
			continue
		}
		code := strings.TrimSpace(row[codeIdx])
		if code == "" {
			continue
		}
		// First entry wins, matching a left join on the first match
		if _, dup := ref[code]; !dup {
			ref[code] = strings.TrimSpace(row[nameIdx])
		}
	}

	return ref, nil
}
