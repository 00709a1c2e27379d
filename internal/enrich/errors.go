package enrich

import (
	"errors"
	"fmt"
	"strconv"
)

var errEmpty = errors.New("empty response")

// ErrUnparseable wraps model output that did not match the expected shape
var ErrUnparseable = errors.New("unparseable AI response")

func parseError(detail string) error {
	return fmt.Errorf("%w: %s", ErrUnparseable, detail)
}

func quote(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return strconv.Quote(s)
}
