package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy. The first three are client input errors; ErrNotImported
// indicates the import pipeline has never run for a dataset that is
// registered, and ErrImportAborted marks a fatal pipeline failure.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNotFound          = errors.New("dataset not found")
	ErrNotImported       = errors.New("dataset not imported")
	ErrImportAborted     = errors.New("import aborted")
)

// maxListedIndices caps how many valid alternatives an UnknownIndexError
// message enumerates.
const maxListedIndices = 12

// UnknownIndexError reports a requested index that is not a real column of
// the dataset's time-series table. It never silently falls back to another
// column.
type UnknownIndexError struct {
	Index     string
	Available []string
}

func (e *UnknownIndexError) Error() string {
	avail := append([]string(nil), e.Available...)
	sort.Strings(avail)
	suffix := ""
	if len(avail) > maxListedIndices {
		avail = avail[:maxListedIndices]
		suffix = "..."
	}
	return fmt.Sprintf("unknown index %q. Available: %s%s", e.Index, strings.Join(avail, ", "), suffix)
}
