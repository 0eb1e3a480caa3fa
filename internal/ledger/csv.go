package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/cipheragg/internal/accumulation"
)

var baseColumns = []string{"contribution_id", "subject", "version", "applied_at", "modulus", "ciphertext"}

// CSV appends one line per record to a file. Named field columns come after
// the fixed columns; any other fields land as a JSON object in extra_fields.
type CSV struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	fields []string
}

var _ accumulation.Ledger = (*CSV)(nil)

// OpenCSV opens path for appending and writes the header if the file is new.
func OpenCSV(path string, fieldColumns ...string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv ledger: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat csv ledger: %w", err)
	}
	l := &CSV{f: f, w: csv.NewWriter(f), fields: append([]string(nil), fieldColumns...)}
	if info.Size() == 0 {
		header := append(append([]string(nil), baseColumns...), l.fields...)
		header = append(header, "extra_fields")
		if err := l.write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return l, nil
}

func (l *CSV) Append(_ context.Context, rec accumulation.Record) error {
	row := []string{
		rec.ContributionID,
		rec.Subject,
		strconv.FormatInt(rec.Version, 10),
		rec.AppliedAt.UTC().Format(time.RFC3339Nano),
		rec.Modulus,
		rec.Ciphertext,
	}
	named := make(map[string]bool, len(l.fields))
	for _, name := range l.fields {
		named[name] = true
		row = append(row, rec.Fields[name])
	}
	extra := map[string]string{}
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !named[k] {
			extra[k] = rec.Fields[k]
		}
	}
	extraCol := ""
	if len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			return fmt.Errorf("encode extra fields: %w", err)
		}
		extraCol = string(raw)
	}
	row = append(row, extraCol)

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(row)
}

func (l *CSV) write(row []string) error {
	if l.f == nil {
		return fmt.Errorf("csv ledger closed")
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write csv ledger: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush csv ledger: %w", err)
	}
	return nil
}

func (l *CSV) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	l.w.Flush()
	err := l.f.Close()
	l.f = nil
	return err
}
