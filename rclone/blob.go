/***************************************************************
 *
 * Copyright (C) 2024, Drive Transfer Service Project
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package rclone

import (
	"context"
	"strings"
	"sync"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
)

// BlobStore is where generated transfer-spec artifacts land. Uploads
// are idempotent overwrites keyed by object path.
type BlobStore interface {
	Upload(ctx context.Context, objectPath string, content []byte) error
}

// GCSBlobStore uploads artifacts to a Cloud Storage bucket.
type GCSBlobStore struct {
	bucket *gcs.BucketHandle
}

func NewGCSBlobStore(ctx context.Context, bucketName string) (*GCSBlobStore, func() error, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create Cloud Storage client")
	}
	return &GCSBlobStore{bucket: client.Bucket(bucketName)}, client.Close, nil
}

func (b *GCSBlobStore) Upload(ctx context.Context, objectPath string, content []byte) error {
	w := b.bucket.Object(objectPath).NewWriter(ctx)
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "failed to write object %s", objectPath)
	}
	return errors.Wrapf(w.Close(), "failed to finalize object %s", objectPath)
}

// MemBlobStore captures uploads in memory for tests.
type MemBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailOn, when set, makes uploads whose path ends with it fail.
	// Used to exercise fan-out rollback.
	FailOn string
}

func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{objects: map[string][]byte{}}
}

func (b *MemBlobStore) Upload(ctx context.Context, objectPath string, content []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailOn != "" && strings.HasSuffix(objectPath, b.FailOn) {
		return errors.Errorf("injected upload failure for %s", objectPath)
	}
	b.objects[objectPath] = append([]byte(nil), content...)
	return nil
}

// Object returns the stored content for an object path, if any.
func (b *MemBlobStore) Object(objectPath string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content, ok := b.objects[objectPath]
	return content, ok
}
