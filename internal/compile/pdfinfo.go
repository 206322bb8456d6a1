package compile

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageCount returns the number of pages in a PDF held in memory.
func PageCount(data []byte) (n int, err error) {
	// The reader panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			n, err = 0, fmt.Errorf("inspect pdf: %v", p)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return r.NumPage(), nil
}
