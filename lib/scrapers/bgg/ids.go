package bgg

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// The identifier artifact is a plain text file with one numeric id per line,
// in discovery order. It splits discovery and ingestion into separate runs:
// `discover` produces it, `ingest --ids` consumes it.

func WriteIDFile(path string, ids []int64) error {
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d\n", id)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// AppendIDFile extends the artifact in place and syncs it to disk, so ids
// flushed mid-discovery survive a crash. ReadIDFile deduplicates, duplicate
// lines from overlapping flushes are harmless.
func AppendIDFile(path string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%d\n", id)
	}
	_, err = f.WriteString(b.String())
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func ReadIDFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ids []int64
	seen := map[int64]bool{}
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: not an identifier: %q", path, line, text)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}
