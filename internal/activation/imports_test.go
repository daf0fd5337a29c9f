package activation

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// The session core must build on hosts without OpenCV or cgo.
func TestImportsStayCgoFree(t *testing.T) {
	const module = "vista/"
	root := filepath.Join("..", "..")
	forbidden := []string{"C", "gocv.io/x/gocv"}

	seen := map[string]bool{}
	queue := []string{"internal/activation"}
	for len(queue) > 0 {
		pkg := queue[0]
		queue = queue[1:]
		if seen[pkg] {
			continue
		}
		seen[pkg] = true

		dir := filepath.Join(root, filepath.FromSlash(pkg))
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
				continue
			}
			f, err := parser.ParseFile(token.NewFileSet(), filepath.Join(dir, name), nil, parser.ImportsOnly)
			if err != nil {
				t.Fatal(err)
			}
			for _, imp := range f.Imports {
				path, _ := strconv.Unquote(imp.Path.Value)
				for _, bad := range forbidden {
					if path == bad {
						t.Errorf("%s/%s imports %q", pkg, name, path)
					}
				}
				if strings.HasPrefix(path, module) {
					queue = append(queue, strings.TrimPrefix(path, module))
				}
			}
		}
	}
	for _, want := range []string{"internal/scene", "pkg/detect"} {
		if !seen[want] {
			t.Errorf("%s not reached from internal/activation", want)
		}
	}
}
