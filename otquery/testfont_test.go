package otquery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/typeforge/opentype/ot"
)

func loadLocalFont(t *testing.T, fontFileName string) *ot.Font {
	t.Helper()
	path := filepath.Join("..", "testdata", fontFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skipf("test font %s not available: %s", fontFileName, err)
	}
	otf, err := ot.Parse(data)
	if err != nil {
		t.Fatalf("cannot decode test font %s: %s", fontFileName, err)
	}
	return otf
}
