package templates

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "REACT.json"))
	if err != nil {
		t.Fatal(err)
	}
	files, err := Flatten(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{
		"package.json":           `{"name":"react-ts"}`,
		"index.html":             `<div id="root"></div>`,
		"src/main.tsx":           "createRoot(el).render(<App />)",
		"src/components/App.tsx": "export default function App() {}",
		".gitignore":             "node_modules",
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("got %v, want %v", files, want)
	}
}

func TestFlattenInvalid(t *testing.T) {
	if _, err := Flatten([]byte(`[1,2]`)); err == nil {
		t.Error("expected error for non-object tree")
	}
	if _, err := Flatten([]byte(`{"items":[42]}`)); err == nil {
		t.Error("expected error for non-object item")
	}
}
