package ioutil

import (
	"errors"
	"fmt"
	"io"
)

var ErrTooLarge = errors.New("body exceeds size limit")

// ReadAtMost reads r fully, failing with ErrTooLarge past limit bytes
func ReadAtMost(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}

// Preview returns up to limit bytes of r for logging upstream failures.
// Read errors are described inline rather than returned.
func Preview(r io.Reader, limit int64) string {
	if r == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}
