package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"

	"github.com/your-org/doorgate/internal/burst"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// LoadDir reads every image in dir as one burst, in natural filename order
// (frame_2 before frame_10).
func LoadDir(dir string) ([]burst.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	natsort.Sort(names)

	frames := make([]burst.Frame, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		frames = append(frames, burst.Frame{ID: name, Data: data})
	}
	return frames, nil
}
