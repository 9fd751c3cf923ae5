package cli

import (
	"fmt"
	"os"

	"github.com/Tabbleman/ncnn/internal/journal"
)

// openJournal opens an existing journal. Unlike journal.Open it refuses to
// create a new database, so a mistyped path is reported instead of read as
// an empty journal.
func openJournal(path string) (*journal.Journal, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("journal not found: %s", path)}
	}
	j, err := journal.Open(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeJournal, Message: err.Error()}
	}
	return j, nil
}
