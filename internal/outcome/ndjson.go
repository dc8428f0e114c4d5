package outcome

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/RubikVault/rubikvault-site-sub000/internal/atomicio"
	"github.com/RubikVault/rubikvault-site-sub000/internal/canonical"
)

// readLines decodes one JSON value per line; a missing file yields no rows
func readLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

// writeLines replaces path with one canonical JSON line per row
func writeLines[T any](path string, rows []T) error {
	var buf bytes.Buffer
	for _, r := range rows {
		b, err := canonical.Marshal(r)
		if err != nil {
			return err
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return atomicio.WriteFile(path, buf.Bytes(), 0o644)
}
