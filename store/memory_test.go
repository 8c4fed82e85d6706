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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetMergePreservesAbsentFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	doc := s.Collection("configs").Doc("c1")

	err := doc.Set(ctx, Fields{
		"config_name": "original",
		"command":     Fields{"drive_type": "shared", "keep": "me"},
	}, true)
	require.NoError(t, err)

	err = doc.Set(ctx, Fields{
		"command": Fields{"drive_type": "mydrive"},
	}, true)
	require.NoError(t, err)

	snap, err := doc.Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, "original", GetString(snap.Data(), "config_name"))
	command := GetMap(snap.Data(), "command")
	assert.Equal(t, "mydrive", command["drive_type"])
	assert.Equal(t, "me", command["keep"])
}

func TestSetWithoutMergeReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	doc := s.Collection("configs").Doc("c1")

	require.NoError(t, doc.Set(ctx, Fields{"a": "1", "b": "2"}, false))
	require.NoError(t, doc.Set(ctx, Fields{"a": "3"}, false))

	snap, err := doc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", GetString(snap.Data(), "a"))
	_, hasB := snap.Data()["b"]
	assert.False(t, hasB)
}

func TestDeleteKeepsSubcollections(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	doc := s.Collection("configs").Doc("c1")
	require.NoError(t, doc.Set(ctx, Fields{"x": "y"}, false))
	require.NoError(t, doc.Collection("children").Doc("k1").Set(ctx, Fields{"n": "1"}, false))

	require.NoError(t, doc.Delete(ctx))

	snap, err := doc.Get(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	// The child document survives the parent delete, as in Firestore.
	childSnaps, err := doc.Collection("children").Documents(ctx)
	require.NoError(t, err)
	require.Len(t, childSnaps, 1)

	// The parent still shows up via DocumentRefs even though it no
	// longer exists as a document.
	refs, err := s.Collection("configs").DocumentRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	docs, err := s.Collection("configs").Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestWhereMatchesDottedFieldPath(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	col := s.Collection("configs").Doc("c1").Collection("children")
	require.NoError(t, col.Doc("a").Set(ctx, Fields{"config": Fields{"root_folder_id": "f1"}}, false))
	require.NoError(t, col.Doc("b").Set(ctx, Fields{"config": Fields{"root_folder_id": "f2"}}, false))

	snaps, err := col.Where(ctx, "config.root_folder_id", "f1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "a", snaps[0].ID())

	snaps, err = col.Where(ctx, "config.root_folder_id", "missing")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestDocFromPathRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	orig := s.Collection("configs").Doc("c1").Collection("members").Doc("m1")
	require.NoError(t, orig.Set(ctx, Fields{"v": "1"}, false))

	ref, err := s.DocFromPath(orig.Path())
	require.NoError(t, err)
	assert.Equal(t, "configs/c1/members/m1", ref.Path())

	snap, err := ref.Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, "1", GetString(snap.Data(), "v"))

	_, err = s.DocFromPath("configs/c1/members")
	assert.Error(t, err)
}

func TestNewDocAssignsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	col := s.Collection("jobs")

	first := col.NewDoc()
	second := col.NewDoc()
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Len(t, first.ID(), 20)

	require.NoError(t, first.Set(ctx, Fields{"status": "pending"}, false))
	require.NoError(t, second.Set(ctx, Fields{"status": "pending"}, false))
	snaps, err := col.Documents(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestCollectionsListsNonEmptyOnly(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	doc := s.Collection("jobs").Doc("j1")
	require.NoError(t, doc.Set(ctx, Fields{"status": "pending"}, false))
	require.NoError(t, doc.Collection("children").Doc("c1").Set(ctx, Fields{}, false))

	names, err := doc.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"children"}, names)
}
