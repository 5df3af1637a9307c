package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// folderPicker answers directory requests by creating a fresh folder under
// a fixed root. It stands in for an interactive dialog on headless hosts.
type folderPicker struct {
	root string
}

func newFolderPicker(root string) *folderPicker {
	if root == "" {
		return nil
	}
	return &folderPicker{root: root}
}

// PickDirectory creates <root>/<uuid> and returns its absolute path.
func (p *folderPicker) PickDirectory(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	root, err := filepath.Abs(p.root)
	if err != nil {
		return "", fmt.Errorf("picker: resolve root: %w", err)
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("picker: create folder: %w", err)
	}
	return dir, nil
}
