package community

import (
	"fmt"
	"path/filepath"

	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/model"
)

// ExportPath is where the partition for a round is written.
func ExportPath(dir string, round int) string {
	return filepath.Join(dir, fmt.Sprintf("communities_round_%d.json", round))
}

func WriteExport(path string, export *model.Export) error {
	if err := common.WriteJSONAtomic(path, export); err != nil {
		return fmt.Errorf("failed to write cluster export: %w", err)
	}
	return nil
}

func ReadExport(path string) (*model.Export, error) {
	var export model.Export
	if err := common.ReadJSON(path, &export); err != nil {
		return nil, fmt.Errorf("failed to read cluster export: %w", err)
	}
	return &export, nil
}
