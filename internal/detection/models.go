package detection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultModels is offered when the models directory has no weights
var DefaultModels = []string{"yolo11n_early_fusion.pt", "yolo11n_mid_fusion.pt", "yolo11n.pt"}

// ListModels returns the .pt weight files in dir, sorted by name
func ListModels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return append([]string(nil), DefaultModels...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models dir: %w", err)
	}

	var models []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pt") {
			continue
		}
		models = append(models, e.Name())
	}
	if len(models) == 0 {
		return append([]string(nil), DefaultModels...), nil
	}
	sort.Strings(models)
	return models, nil
}
