package connectors

import (
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"limeal.fr/mcboot/pkg/utils"
)

const FILE_SCHEME = "file"

// FileConnector serves a directory of the local filesystem.
type FileConnector struct {
	Path string
}

// NewFromURI accepts file:///abs/dir and file://./relative/dir.
func (c *FileConnector) NewFromURI(uri string) Connector {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil
	}

	root := parsed.Host + parsed.Path
	if strings.HasPrefix(root, "./") || root == "." {
		pwd, err := os.Getwd()
		if err != nil {
			return nil
		}
		root = filepath.Join(pwd, strings.TrimPrefix(root, "."))
	}
	return &FileConnector{Path: filepath.FromSlash(root)}
}

func (c *FileConnector) GetPath() string {
	return c.Path
}

func (c *FileConnector) GetURI() string {
	return FILE_SCHEME + "://" + filepath.ToSlash(c.Path)
}

func (c *FileConnector) Connect() error {
	return nil
}

func (c *FileConnector) resolve(remotePath string) string {
	return filepath.Join(c.Path, filepath.FromSlash(remotePath))
}

func (c *FileConnector) ReadFileBytes(remotePath string, size int64) ([]byte, error) {
	f, err := os.Open(c.resolve(remotePath))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if size > 0 {
		buf := make([]byte, size)
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return io.ReadAll(f)
}

func (c *FileConnector) SendFile(remotePath string, localPath string) error {
	return utils.CopyFile(localPath, c.resolve(remotePath))
}

func (c *FileConnector) SendFileFromBytes(remotePath string, bytes []byte, perm ...fs.FileMode) error {
	fullPath := c.resolve(remotePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	mode := fs.FileMode(0o644)
	if len(perm) > 0 {
		mode = perm[0]
	}
	// WriteFile keeps the old mode of an existing file
	_ = os.Remove(fullPath)
	return os.WriteFile(fullPath, bytes, mode)
}

func (c *FileConnector) GetScheme() string {
	return FILE_SCHEME
}

func (c *FileConnector) IsConnected() bool {
	return true
}

func (c *FileConnector) Close() error {
	return nil
}

func (c *FileConnector) HasFile(remotePath string) bool {
	return utils.FileExists(c.resolve(remotePath))
}

func (c *FileConnector) HasFileWithChecksum(remotePath string, checksumType ChecksumType, checksum string) bool {
	full := c.resolve(remotePath)
	switch checksumType {
	case ChecksumTypeSHA1:
		return utils.FileSHA1(full) == checksum
	case ChecksumTypeSHA256:
		return utils.FileSHA256(full) == checksum
	}
	return false
}
