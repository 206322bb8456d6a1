package compile

import (
	"io"
	"os"
	"unicode/utf8"
)

// ReadLogTail returns at most budget characters from the end of the file at
// path. Any read error yields "".
func ReadLogTail(path string, budget int) string {
	if budget <= 0 {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return ""
	}

	// A character is at most utf8.UTFMax bytes.
	window := int64(budget) * utf8.UTFMax
	offset := max(0, info.Size()-window)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(f, window))
	if err != nil {
		return ""
	}
	if offset > 0 {
		// Drop a partial character at the cut.
		for len(data) > 0 && !utf8.RuneStart(data[0]) {
			data = data[1:]
		}
	}
	return TailString(string(data), budget)
}

// TailString returns the last budget characters of s.
func TailString(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-budget:])
}
