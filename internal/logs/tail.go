package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

const maxLineBytes = 1 << 20

// Last returns up to limit of the newest entries in path that match filter,
// oldest first, plus the file offset to resume following from. A missing
// file yields no entries and offset zero.
func Last(path string, limit int, filter Filter) ([]Entry, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		offset, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, offset, nil
	}

	ring := make([]Entry, 0, limit)
	start := 0
	offset, err := scan(file, func(e Entry) {
		if !filter.Match(e) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, e)
			return
		}
		ring[start] = e
		start = (start + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	return append(ring[start:], ring[:start]...), offset, nil
}

// Follow calls fn for each matching entry appended to path after offset until
// ctx ends. A rotated or truncated file is read again from the start.
func Follow(ctx context.Context, path string, offset int64, filter Filter, fn func(Entry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create log watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch log directory: %w", err)
	}

	emit := func(e Entry) {
		if filter.Match(e) {
			fn(e)
		}
	}
	if offset, err = readFrom(path, offset, emit); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch log file: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				offset = 0
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if offset, err = readFrom(path, offset, emit); err != nil {
					return err
				}
			}
		}
	}
}

func readFrom(path string, offset int64, fn func(Entry)) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	consumed, err := scan(file, fn)
	if err != nil {
		return offset, err
	}
	return offset + consumed, nil
}

// scan decodes complete lines from r and returns the number of bytes
// consumed. A trailing partial line is left for the next read.
func scan(r io.Reader, fn func(Entry)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return consumed, nil
		}
		if err != nil {
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		if entry, ok := Parse(line); ok {
			fn(entry)
		}
	}
}
