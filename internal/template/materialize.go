package template

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rescale/fwrelease/internal/localfs"
)

// StagedFile reports what Materialize did for one CopyAction.
// Staged is false when the destination already held identical content.
type StagedFile struct {
	Source string
	Dest   string
	Staged bool
}

// Materialize performs the copies collected by Resolve, creating staging
// directories as needed. Copies preserve mode and modification time.
func Materialize(copies []CopyAction) ([]StagedFile, error) {
	out := make([]StagedFile, 0, len(copies))
	for _, c := range copies {
		if localfs.SameContent(c.Source, c.Dest) {
			out = append(out, StagedFile{Source: c.Source, Dest: c.Dest})
			continue
		}
		if err := os.MkdirAll(filepath.Dir(c.Dest), 0755); err != nil {
			return out, fmt.Errorf("failed to create staging directory %s: %w", filepath.Dir(c.Dest), err)
		}
		if err := localfs.CopyFile(c.Source, c.Dest); err != nil {
			return out, err
		}
		out = append(out, StagedFile{Source: c.Source, Dest: c.Dest, Staged: true})
	}
	return out, nil
}
