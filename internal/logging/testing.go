package logging

import (
	"io"
	"log"
)

// newTestStdLogger builds the raw stdlib logger used by tests.
func newTestStdLogger(w io.Writer) *log.Logger {
	return log.New(w, "", 0)
}
