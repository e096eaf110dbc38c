// Package discovery enumerates candidate example cases in a directory.
//
// Discovery is side-effect free and deterministic: the same directory
// contents always yield the same ordered sequence, so repeated harness runs
// are reproducible. An empty result is valid and means a trivially
// successful batch.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
)

// Case identifies one example program.
type Case struct {
	// Name is the file name within the examples directory.
	Name string
	// Path is the full path to the example file.
	Path string
}

// Error reports a failed directory enumeration. It is fatal: no case
// executes when discovery fails.
type Error struct {
	Dir string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot discover examples in %s: %v", e.Dir, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Cases lists the example files in dir with the given extension, in lexical
// order. Names in exclude are skipped; by convention the finalization case
// lives alongside the examples but is not part of the discovered set.
func Cases(dir, ext string, exclude ...string) ([]Case, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Dir: dir, Err: err}
	}

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	// os.ReadDir sorts entries by name, which gives the deterministic
	// ordering the batch contract requires.
	var cases []Case
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ext || skip[name] {
			continue
		}
		cases = append(cases, Case{
			Name: name,
			Path: filepath.Join(dir, name),
		})
	}
	return cases, nil
}
