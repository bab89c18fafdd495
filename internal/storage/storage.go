package storage

import (
	"context"
	"io"
)

// Document is a single file to place in a folder.
type Document struct {
	Name        string
	Body        io.Reader
	ContentType string
}

// Service stores documents under named folders in remote object storage.
type Service interface {
	// EnsureFolder returns the folder's key, creating the folder when it does not exist yet.
	EnsureFolder(ctx context.Context, folder string) (string, error)
	// PutDocument writes doc into the folder and returns its location.
	PutDocument(ctx context.Context, folderKey string, doc Document) (string, error)
}
