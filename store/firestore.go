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

package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fsStore backs the Store interface with a Cloud Firestore database.
// The service keeps one database per environment, named
// "dts-dmo-<environment>".
type fsStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to the environment's Firestore database.
func NewFirestoreStore(ctx context.Context, projectID, environment string) (Store, error) {
	database := fmt.Sprintf("dts-dmo-%s", environment)
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to Firestore database %s", database)
	}
	return &fsStore{client: client}, nil
}

func (s *fsStore) Collection(name string) CollectionRef {
	return &fsCol{store: s, col: s.client.Collection(name)}
}

func (s *fsStore) DocFromPath(path string) (DocRef, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	doc := s.client.Collection(segments[0]).Doc(segments[1])
	for i := 2; i < len(segments); i += 2 {
		doc = doc.Collection(segments[i]).Doc(segments[i+1])
	}
	return &fsDoc{store: s, doc: doc}, nil
}

func (s *fsStore) Close() error {
	return s.client.Close()
}

// relPath strips the "projects/<p>/databases/<d>/documents/" prefix off
// a Firestore resource name so stored references stay portable across
// environments.
func relPath(resource string) string {
	const marker = "/documents/"
	if idx := strings.Index(resource, marker); idx >= 0 {
		return resource[idx+len(marker):]
	}
	return resource
}

type fsCol struct {
	store *fsStore
	col   *firestore.CollectionRef
}

func (c *fsCol) ID() string {
	return c.col.ID
}

func (c *fsCol) Doc(id string) DocRef {
	return &fsDoc{store: c.store, doc: c.col.Doc(id)}
}

func (c *fsCol) NewDoc() DocRef {
	return &fsDoc{store: c.store, doc: c.col.NewDoc()}
}

func (c *fsCol) Documents(ctx context.Context) ([]Snapshot, error) {
	return drainQuery(ctx, c.store, c.col.Documents(ctx))
}

func (c *fsCol) DocumentRefs(ctx context.Context) ([]DocRef, error) {
	iter := c.col.DocumentRefs(ctx)
	var refs []DocRef
	for {
		ref, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list documents of %s", c.col.Path)
		}
		refs = append(refs, &fsDoc{store: c.store, doc: ref})
	}
	return refs, nil
}

func (c *fsCol) Where(ctx context.Context, fieldPath string, value any) ([]Snapshot, error) {
	return drainQuery(ctx, c.store, c.col.Where(fieldPath, "==", value).Documents(ctx))
}

func drainQuery(ctx context.Context, store *fsStore, iter *firestore.DocumentIterator) ([]Snapshot, error) {
	defer iter.Stop()
	var snaps []Snapshot
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to stream Firestore documents")
		}
		snaps = append(snaps, &fsSnapshot{
			ref:    &fsDoc{store: store, doc: snap.Ref},
			exists: true,
			data:   snap.Data(),
		})
	}
	return snaps, nil
}

type fsDoc struct {
	store *fsStore
	doc   *firestore.DocumentRef
}

func (d *fsDoc) ID() string {
	return d.doc.ID
}

func (d *fsDoc) Path() string {
	return relPath(d.doc.Path)
}

func (d *fsDoc) Collection(name string) CollectionRef {
	return &fsCol{store: d.store, col: d.doc.Collection(name)}
}

func (d *fsDoc) Collections(ctx context.Context) ([]string, error) {
	iter := d.doc.Collections(ctx)
	var names []string
	for {
		col, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list sub-collections of %s", d.Path())
		}
		names = append(names, col.ID)
	}
	return names, nil
}

func (d *fsDoc) Get(ctx context.Context) (Snapshot, error) {
	snap, err := d.doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &fsSnapshot{ref: d, exists: false}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch document %s", d.Path())
	}
	return &fsSnapshot{ref: d, exists: snap.Exists(), data: snap.Data()}, nil
}

func (d *fsDoc) Set(ctx context.Context, data Fields, merge bool) error {
	var opts []firestore.SetOption
	if merge {
		opts = append(opts, firestore.MergeAll)
	}
	if _, err := d.doc.Set(ctx, data, opts...); err != nil {
		return errors.Wrapf(err, "failed to write document %s", d.Path())
	}
	return nil
}

func (d *fsDoc) Update(ctx context.Context, data Fields) error {
	return d.Set(ctx, data, true)
}

func (d *fsDoc) Delete(ctx context.Context) error {
	if _, err := d.doc.Delete(ctx); err != nil {
		return errors.Wrapf(err, "failed to delete document %s", d.Path())
	}
	return nil
}

type fsSnapshot struct {
	ref    DocRef
	exists bool
	data   Fields
}

func (s *fsSnapshot) ID() string   { return s.ref.ID() }
func (s *fsSnapshot) Ref() DocRef  { return s.ref }
func (s *fsSnapshot) Exists() bool { return s.exists }
func (s *fsSnapshot) Data() Fields { return s.data }
