package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadEncrypter loads a plugin encrypter of the given type from raw bytes.
func LoadEncrypter(ctx context.Context, typeIdentifier string, data []byte, name string) (Encrypter, error) {
	factory, err := GetLoaderFactory(typeIdentifier)
	if err != nil {
		return nil, err
	}

	loader, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s loader: %w", typeIdentifier, err)
	}

	return loader.Load(ctx, data, name)
}

// LoadFile loads a plugin encrypter from path. The plugin type is taken from
// the file extension and the fallback name from the file's base name.
func LoadFile(ctx context.Context, path string) (Encrypter, error) {
	ext := filepath.Ext(path)
	typeIdentifier := strings.TrimPrefix(strings.ToLower(ext), ".")
	if typeIdentifier == "" {
		return nil, fmt.Errorf("cannot determine plugin type of %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), ext)
	return LoadEncrypter(ctx, typeIdentifier, data, name)
}
