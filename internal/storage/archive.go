package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

const uploadContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// UploadArchive keeps the raw bytes of uploaded workbooks in an object store.
type UploadArchive struct {
	store ObjectStore
}

func NewUploadArchive(store ObjectStore) (*UploadArchive, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &UploadArchive{store: store}, nil
}

func (a *UploadArchive) Save(ctx context.Context, fileID, originalName string, data []byte) (ObjectInfo, error) {
	key, err := BuildUploadPath(fileID, originalName)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), PutOptions{
		ContentType: uploadContentType,
		Metadata:    map[string]string{"original-name": originalName},
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("archive upload %s: %w", fileID, err)
	}
	return info, nil
}

// Open returns the archived bytes of an upload. Callers close the reader.
func (a *UploadArchive) Open(ctx context.Context, fileID, originalName string) (io.ReadCloser, ObjectInfo, error) {
	key, err := BuildUploadPath(fileID, originalName)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	info, err := a.store.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	reader, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return reader, info, nil
}
