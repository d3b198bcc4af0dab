package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

const maxRecordLine = 4 << 20

// readRecords reads JSONL source records from path; "" or "-" reads stdin
func readRecords(path string) ([]models.SourceRecord, error) {
	if path == "" || path == "-" {
		return decodeRecords(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	records, err := decodeRecords(f)
	if err != nil {
		return nil, errors.Wrapf(err, "input %s", path)
	}
	return records, nil
}

// decodeRecords reads one record per line. Blank lines are skipped, blank attribute
// values are dropped and a repeated record ID is an error.
func decodeRecords(r io.Reader) ([]models.SourceRecord, error) {
	validate := validator.New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordLine)

	var records []models.SourceRecord
	seen := map[string]int{}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var raw models.SourceRecord
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if err := validate.Struct(raw); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if first, ok := seen[raw.ID]; ok {
			return nil, errors.Errorf("line %d: record %s already read on line %d", line, raw.ID, first)
		}
		seen[raw.ID] = line

		record := models.NewSourceRecord(raw.ID, raw.Attributes)
		record.Links = raw.Links
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read records")
	}
	return records, nil
}
