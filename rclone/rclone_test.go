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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtsplatform/dts/store"
)

func TestCreateConfigFileStanzas(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	srcRef := s.Collection("configs").Doc("src")
	require.NoError(t, srcRef.Set(ctx, store.Fields{
		"storage_type": "drive",
		"config": store.Fields{
			"storage_type":   "drive",
			"scope":          "drive",
			"team_drive":     "drv1",
			"root_folder_id": nil,
		},
	}, false))
	dstRef := s.Collection("configs").Doc("dst")
	require.NoError(t, dstRef.Set(ctx, store.Fields{
		"storage_type": "gcs",
		"config": store.Fields{
			"storage_type":   "gcs",
			"project_number": "12345",
			"location":       "us",
		},
	}, false))

	blobs := NewMemBlobStore()
	w := NewWriter(blobs, "oauth-id", "oauth-secret")
	require.NoError(t, w.CreateConfigFile(ctx, "job1", srcRef, dstRef, "admin"))

	content, ok := blobs.Object("job1/" + ConfigObjectName)
	require.True(t, ok)
	text := string(content)

	assert.Contains(t, text, "[drive]\ntype = drive\n")
	assert.Contains(t, text, "[gcs]\ntype = gcs\n")
	assert.Contains(t, text, "client_id = oauth-id\n")
	assert.Contains(t, text, "client_secret = oauth-secret\n")
	assert.Contains(t, text, "service_account_file = /var/secrets/sa-rclone-admin-transfers-key.json\n")
	assert.Contains(t, text, "team_drive = drv1\n")
	assert.Contains(t, text, "project_number = 12345\n")
	// nil connection parameters render as empty values
	assert.Contains(t, text, "root_folder_id = \n")
	// source stanza comes first
	assert.Less(t, strings.Index(text, "[drive]"), strings.Index(text, "[gcs]"))
}

func TestCreateConfigFileMissingEndpoint(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	srcRef := s.Collection("configs").Doc("src")
	require.NoError(t, srcRef.Set(ctx, store.Fields{"storage_type": "drive"}, false))
	dstRef := s.Collection("configs").Doc("missing")

	w := NewWriter(NewMemBlobStore(), "id", "secret")
	err := w.CreateConfigFile(ctx, "job1", srcRef, dstRef, "admin")
	assert.Error(t, err)
}

func TestCreateFilterFile(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	srcRef := s.Collection("configs").Doc("src")
	require.NoError(t, srcRef.Set(ctx, store.Fields{"storage_type": "drive"}, false))
	children := srcRef.Collection("children")
	require.NoError(t, children.Doc("c1").Set(ctx, store.Fields{
		"command": store.Fields{"folder_name": "Reports"},
	}, false))
	require.NoError(t, children.Doc("c2").Set(ctx, store.Fields{
		"command": store.Fields{"folder_name": "Photos"},
	}, false))

	blobs := NewMemBlobStore()
	w := NewWriter(blobs, "id", "secret")
	created, err := w.CreateFilterFile(ctx, "job1", srcRef)
	require.NoError(t, err)
	assert.True(t, created)

	content, ok := blobs.Object("job1/" + FilterObjectName)
	require.True(t, ok)
	assert.Equal(t, "Reports/**\nPhotos/**\n", string(content))
}

func TestCreateFilterFileOmittedWithoutChildren(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	srcRef := s.Collection("configs").Doc("src")
	require.NoError(t, srcRef.Set(ctx, store.Fields{"storage_type": "drive"}, false))

	blobs := NewMemBlobStore()
	w := NewWriter(blobs, "id", "secret")
	created, err := w.CreateFilterFile(ctx, "job1", srcRef)
	require.NoError(t, err)
	assert.False(t, created)

	_, ok := blobs.Object("job1/" + FilterObjectName)
	assert.False(t, ok)
}
