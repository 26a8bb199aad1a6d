package contract

import (
	"errors"
	"fmt"
	"strings"
)

// errlist aggregates multiple validation issues into a single error so a
// caller sees everything wrong with a document at once.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	return errors.New(strings.Join(e.msgs, "\n"))
}
