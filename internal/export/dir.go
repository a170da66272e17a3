package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Dir writes each record as a JSON file under Path.
type Dir struct {
	Path string
}

func (d Dir) Export(_ context.Context, r Record) error {
	b, err := r.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Path, r.FileName()), b, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}
