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
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests. It mirrors the
// document/sub-collection semantics of the Firestore store: deleting a
// document leaves its sub-collections in place, and collection queries
// only return documents that exist.
type MemStore struct {
	mu   sync.RWMutex
	cols map[string]*memCol
}

type memCol struct {
	docs map[string]*memDoc
}

type memDoc struct {
	exists bool
	data   Fields
	cols   map[string]*memCol
}

func NewMemStore() *MemStore {
	return &MemStore{cols: map[string]*memCol{}}
}

func (s *MemStore) Collection(name string) CollectionRef {
	return &memColRef{store: s, path: name}
}

func (s *MemStore) DocFromPath(path string) (DocRef, error) {
	segments, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return &memDocRef{store: s, path: strings.Join(segments, "/")}, nil
}

func (s *MemStore) Close() error {
	return nil
}

// resolveCol walks the tree to the collection at the given path,
// creating intermediate nodes when create is set.
func (s *MemStore) resolveCol(path string, create bool) *memCol {
	segments := strings.Split(path, "/")
	cols := s.cols
	var col *memCol
	for i := 0; i < len(segments); i++ {
		if i%2 == 0 { // collection segment
			c, ok := cols[segments[i]]
			if !ok {
				if !create {
					return nil
				}
				c = &memCol{docs: map[string]*memDoc{}}
				cols[segments[i]] = c
			}
			col = c
		} else { // document segment
			d, ok := col.docs[segments[i]]
			if !ok {
				if !create {
					return nil
				}
				d = &memDoc{cols: map[string]*memCol{}}
				col.docs[segments[i]] = d
			}
			cols = d.cols
		}
	}
	return col
}

func (s *MemStore) resolveDoc(path string, create bool) *memDoc {
	segments := strings.Split(path, "/")
	colPath := strings.Join(segments[:len(segments)-1], "/")
	col := s.resolveCol(colPath, create)
	if col == nil {
		return nil
	}
	id := segments[len(segments)-1]
	d, ok := col.docs[id]
	if !ok {
		if !create {
			return nil
		}
		d = &memDoc{cols: map[string]*memCol{}}
		col.docs[id] = d
	}
	return d
}

type memColRef struct {
	store *MemStore
	path  string
}

func (c *memColRef) ID() string {
	segments := strings.Split(c.path, "/")
	return segments[len(segments)-1]
}

func (c *memColRef) Doc(id string) DocRef {
	return &memDocRef{store: c.store, path: c.path + "/" + id}
}

func (c *memColRef) NewDoc() DocRef {
	// 20 hex characters, in the spirit of Firestore auto IDs.
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	return c.Doc(id)
}

func (c *memColRef) Documents(ctx context.Context) ([]Snapshot, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	col := c.store.resolveCol(c.path, false)
	if col == nil {
		return nil, nil
	}
	var snaps []Snapshot
	for _, id := range sortedDocIDs(col) {
		doc := col.docs[id]
		if !doc.exists {
			continue
		}
		snaps = append(snaps, &memSnapshot{
			ref:    &memDocRef{store: c.store, path: c.path + "/" + id},
			exists: true,
			data:   deepCopy(doc.data),
		})
	}
	return snaps, nil
}

func (c *memColRef) DocumentRefs(ctx context.Context) ([]DocRef, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	col := c.store.resolveCol(c.path, false)
	if col == nil {
		return nil, nil
	}
	var refs []DocRef
	for _, id := range sortedDocIDs(col) {
		refs = append(refs, &memDocRef{store: c.store, path: c.path + "/" + id})
	}
	return refs, nil
}

func (c *memColRef) Where(ctx context.Context, fieldPath string, value any) ([]Snapshot, error) {
	snaps, err := c.Documents(ctx)
	if err != nil {
		return nil, err
	}
	var matched []Snapshot
	for _, snap := range snaps {
		if v, ok := FieldAtPath(snap.Data(), fieldPath); ok && reflect.DeepEqual(v, value) {
			matched = append(matched, snap)
		}
	}
	return matched, nil
}

type memDocRef struct {
	store *MemStore
	path  string
}

func (d *memDocRef) ID() string {
	segments := strings.Split(d.path, "/")
	return segments[len(segments)-1]
}

func (d *memDocRef) Path() string {
	return d.path
}

func (d *memDocRef) Collection(name string) CollectionRef {
	return &memColRef{store: d.store, path: d.path + "/" + name}
}

func (d *memDocRef) Collections(ctx context.Context) ([]string, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	doc := d.store.resolveDoc(d.path, false)
	if doc == nil {
		return nil, nil
	}
	var names []string
	for name, col := range doc.cols {
		if len(col.docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *memDocRef) Get(ctx context.Context) (Snapshot, error) {
	d.store.mu.RLock()
	defer d.store.mu.RUnlock()
	doc := d.store.resolveDoc(d.path, false)
	if doc == nil || !doc.exists {
		return &memSnapshot{ref: d, exists: false}, nil
	}
	return &memSnapshot{ref: d, exists: true, data: deepCopy(doc.data)}, nil
}

func (d *memDocRef) Set(ctx context.Context, data Fields, merge bool) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	doc := d.store.resolveDoc(d.path, true)
	if merge && doc.exists {
		doc.data = deepMerge(doc.data, deepCopy(data))
	} else {
		doc.data = deepCopy(data)
	}
	doc.exists = true
	return nil
}

func (d *memDocRef) Update(ctx context.Context, data Fields) error {
	return d.Set(ctx, data, true)
}

func (d *memDocRef) Delete(ctx context.Context) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	doc := d.store.resolveDoc(d.path, false)
	if doc == nil {
		return nil
	}
	doc.exists = false
	doc.data = nil
	return nil
}

type memSnapshot struct {
	ref    DocRef
	exists bool
	data   Fields
}

func (s *memSnapshot) ID() string   { return s.ref.ID() }
func (s *memSnapshot) Ref() DocRef  { return s.ref }
func (s *memSnapshot) Exists() bool { return s.exists }
func (s *memSnapshot) Data() Fields { return s.data }

func sortedDocIDs(col *memCol) []string {
	ids := make([]string, 0, len(col.docs))
	for id := range col.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func deepCopy(data Fields) Fields {
	if data == nil {
		return nil
	}
	out := make(Fields, len(data))
	for k, v := range data {
		if m, ok := v.(map[string]any); ok {
			out[k] = deepCopy(m)
		} else {
			out[k] = v
		}
	}
	return out
}

// deepMerge overlays src onto dst: nested maps merge recursively, any
// other value overwrites. dst is modified and returned.
func deepMerge(dst, src Fields) Fields {
	if dst == nil {
		return src
	}
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[k] = deepMerge(dstMap, srcMap)
		} else {
			dst[k] = v
		}
	}
	return dst
}
