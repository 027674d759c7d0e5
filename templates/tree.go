package templates

import (
	"encoding/json"
	"fmt"
	"path"
)

// item is either a folder (FolderName set) or a file.
type item struct {
	FolderName    string            `json:"folderName"`
	Items         []json.RawMessage `json:"items"`
	Filename      string            `json:"filename"`
	FileExtension string            `json:"fileExtension"`
	Content       string            `json:"content"`
}

// Flatten decodes a template file tree into slash-separated paths and file
// contents. The root folder name is not part of the paths.
func Flatten(raw json.RawMessage) (map[string]string, error) {
	var root item
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to parse template tree: %w", err)
	}
	files := make(map[string]string)
	if err := flattenItems("", root.Items, files); err != nil {
		return nil, err
	}
	return files, nil
}

func flattenItems(dir string, items []json.RawMessage, files map[string]string) error {
	for _, raw := range items {
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			return fmt.Errorf("failed to parse template tree: %w", err)
		}
		if it.FolderName != "" {
			if err := flattenItems(path.Join(dir, it.FolderName), it.Items, files); err != nil {
				return err
			}
			continue
		}
		name := it.Filename
		if it.FileExtension != "" {
			name += "." + it.FileExtension
		}
		if name == "" {
			continue
		}
		files[path.Join(dir, name)] = it.Content
	}
	return nil
}
