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

// Package store abstracts the tree-structured document store that holds
// transfer configurations and jobs.
//
// Documents live in named collections; each document may own further
// sub-collections (configs/<id>/children/<id>, jobs/<id>/members/<id>/...).
// Cross-document links are stored as the referent's path string and
// resolved through Store.DocFromPath, never dereferenced implicitly.
//
// Two implementations are provided: a Firestore-backed store for
// production and an in-memory store for tests.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Fields is the schemaless payload of a document.
type Fields = map[string]any

type Store interface {
	// Collection returns a handle for a top-level collection.
	Collection(name string) CollectionRef
	// DocFromPath resolves a stored document path such as "configs/abc"
	// or "configs/abc/children/xyz" into a reference.
	DocFromPath(path string) (DocRef, error)
	Close() error
}

type CollectionRef interface {
	ID() string
	Doc(id string) DocRef
	// NewDoc returns a reference with a fresh store-assigned ID. Nothing
	// is written until Set is called.
	NewDoc() DocRef
	// Documents returns a snapshot of every existing document in the
	// collection, in stable (ID) order.
	Documents(ctx context.Context) ([]Snapshot, error)
	// DocumentRefs lists references for every document in the collection,
	// including ones that only exist as parents of sub-collections.
	DocumentRefs(ctx context.Context) ([]DocRef, error)
	// Where returns the documents whose (possibly dotted) field path
	// equals the given value.
	Where(ctx context.Context, fieldPath string, value any) ([]Snapshot, error)
}

type DocRef interface {
	ID() string
	// Path is the store-relative document path, e.g. "configs/abc".
	Path() string
	Collection(name string) CollectionRef
	// Collections lists the names of the document's non-empty
	// sub-collections.
	Collections(ctx context.Context) ([]string, error)
	// Get never fails just because the document is absent; check
	// Snapshot.Exists.
	Get(ctx context.Context) (Snapshot, error)
	// Set writes the document. With merge=true, fields present in data
	// overwrite (nested maps merge recursively) and absent fields are
	// preserved; with merge=false the document is replaced.
	Set(ctx context.Context, data Fields, merge bool) error
	// Update merges the given fields into an existing document.
	Update(ctx context.Context, data Fields) error
	Delete(ctx context.Context) error
}

type Snapshot interface {
	ID() string
	Ref() DocRef
	Exists() bool
	Data() Fields
}

// ParsePath splits a document path into its segments, enforcing the
// collection/document alternation.
func ParsePath(path string) ([]string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || len(segments)%2 != 0 {
		return nil, errors.Errorf("document path %q must have an even number of segments", path)
	}
	for _, seg := range segments {
		if seg == "" {
			return nil, errors.Errorf("document path %q contains an empty segment", path)
		}
	}
	return segments, nil
}

// GetString extracts a string field from document data, tolerating a
// missing key or a non-string value.
func GetString(data Fields, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// GetMap extracts a nested map field from document data.
func GetMap(data Fields, key string) Fields {
	if v, ok := data[key].(map[string]any); ok {
		return v
	}
	return Fields{}
}

// GetStringSlice extracts a string list field from document data. The
// Firestore client decodes arrays as []interface{}, so both shapes are
// accepted.
func GetStringSlice(data Fields, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FieldAtPath walks a dotted field path ("config.root_folder_id")
// through nested maps. The second return is false when any segment is
// missing.
func FieldAtPath(data Fields, fieldPath string) (any, bool) {
	segments := strings.Split(fieldPath, ".")
	cur := any(data)
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
