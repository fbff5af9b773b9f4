package connectors

import (
	"io/fs"
	"strings"

	"limeal.fr/mcboot/pkg/utils"
)

type ChecksumType int

const (
	ChecksumTypeSHA1 ChecksumType = iota + 1
	ChecksumTypeSHA256
)

// Connector is a storage backend an installation mirror lives on. Paths are
// relative to the base path carried by the URI the connector was built from.
type Connector interface {
	NewFromURI(uri string) Connector

	GetPath() string
	GetURI() string

	Connect() error
	ReadFileBytes(remotePath string, size int64) ([]byte, error)

	SendFile(remotePath string, localPath string) error
	SendFileFromBytes(remotePath string, bytes []byte, perm ...fs.FileMode) error

	GetScheme() string // file, sftp, s3
	IsConnected() bool
	Close() error

	HasFile(remotePath string) bool
	HasFileWithChecksum(remotePath string, checksumType ChecksumType, checksum string) bool
}

var CONNECTORS = map[string]Connector{
	FILE_SCHEME: new(FileConnector),
	SFTP_SCHEME: new(SFTPConnector),
	S3_SCHEME:   new(S3Connector),
}

// FindConnectorFromURI returns an unconnected connector for uri, or nil when
// no connector handles its scheme.
func FindConnectorFromURI(uri string) Connector {
	for scheme, connector := range CONNECTORS {
		if strings.HasPrefix(uri, scheme+"://") {
			return connector.NewFromURI(uri)
		}
	}
	return nil
}

func matchesChecksum(data []byte, checksumType ChecksumType, checksum string) bool {
	switch checksumType {
	case ChecksumTypeSHA1:
		return utils.BytesSHA1(data) == checksum
	case ChecksumTypeSHA256:
		return utils.BytesSHA256(data) == checksum
	}
	return false
}
