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

package gdrive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLister serves canned folder listings and per-folder child
// listings.
type fakeLister struct {
	folders  []driveFile
	children map[string][]driveFile
}

func (f *fakeLister) listFolders(ctx context.Context, driveType, driveID, impersonate string) ([]driveFile, error) {
	return f.folders, nil
}

func (f *fakeLister) listChildren(ctx context.Context, driveType, driveID, folderID, impersonate string) ([]driveFile, error) {
	return f.children[folderID], nil
}

func folder(id, name string, parents ...string) driveFile {
	return driveFile{ID: id, Name: name, MimeType: folderMimeType, Parents: parents}
}

func file(id string, size, quota int64, parents ...string) driveFile {
	return driveFile{ID: id, MimeType: "text/plain", Size: size, QuotaBytesUsed: quota, Parents: parents}
}

func TestListSubfoldersEmptyDrive(t *testing.T) {
	lister := &fakeLister{}
	got, err := listSubfolders(context.Background(), lister, DriveTypeShared, "drv1", "", "", false)
	require.NoError(t, err)
	assert.Empty(t, got.Parent)
	assert.Empty(t, got.Subfolders)
}

func TestListSubfoldersSharedDriveRoot(t *testing.T) {
	lister := &fakeLister{
		folders: []driveFile{
			folder("A", "Alpha", "drv1"),
			folder("B", "Beta", "A"),
			folder("C", "Gamma", "drv1"),
		},
	}
	got, err := listSubfolders(context.Background(), lister, DriveTypeShared, "drv1", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, "drv1", got.Parent)
	require.Len(t, got.Subfolders, 2)
	assert.Equal(t, "A", got.Subfolders[0].ID)
	assert.Equal(t, "https://drive.google.com/drive/folders/A", got.Subfolders[0].URL)
	assert.Equal(t, "C", got.Subfolders[1].ID)
	// Non-recursive listings carry no aggregates.
	assert.Zero(t, got.Subfolders[0].ItemCount)
}

func TestListSubfoldersMyDriveRootInference(t *testing.T) {
	// A sits under the (unlisted) My Drive root, B under A. Only A is an
	// immediate child of the inferred root.
	lister := &fakeLister{
		folders: []driveFile{
			folder("A", "Alpha", "root"),
			folder("B", "Beta", "A"),
		},
	}
	got, err := listSubfolders(context.Background(), lister, DriveTypeMyDrive, "", "user@example.com", "", false)
	require.NoError(t, err)
	assert.Equal(t, "root", got.Parent)
	require.Len(t, got.Subfolders, 1)
	assert.Equal(t, "A", got.Subfolders[0].ID)
}

func TestListSubfoldersMyDriveAmbiguousRootIsDeterministic(t *testing.T) {
	// Two disjoint trees in one listing: both "root2" and "root1"
	// qualify as roots; the lexicographically first wins.
	lister := &fakeLister{
		folders: []driveFile{
			folder("X", "Xray", "root2"),
			folder("A", "Alpha", "root1"),
		},
	}
	got, err := listSubfolders(context.Background(), lister, DriveTypeMyDrive, "", "user@example.com", "", false)
	require.NoError(t, err)
	assert.Equal(t, "root1", got.Parent)
	require.Len(t, got.Subfolders, 1)
	assert.Equal(t, "A", got.Subfolders[0].ID)
}

func TestListSubfoldersExplicitRootFolder(t *testing.T) {
	lister := &fakeLister{
		folders: []driveFile{
			folder("A", "Alpha", "drv1"),
			folder("B", "Beta", "A"),
			folder("C", "Gamma", "B"),
		},
	}
	got, err := listSubfolders(context.Background(), lister, DriveTypeShared, "drv1", "", "A", false)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Parent)
	require.Len(t, got.Subfolders, 1)
	assert.Equal(t, "B", got.Subfolders[0].ID)
}

func TestListSubfoldersRecursiveAggregates(t *testing.T) {
	// A contains file f1 and folder B; B contains files f2 and f3.
	lister := &fakeLister{
		folders: []driveFile{
			folder("A", "Alpha", "drv1"),
		},
		children: map[string][]driveFile{
			"A": {file("f1", 100, 110, "A"), folder("B", "Beta", "A")},
			"B": {file("f2", 20, 22, "B"), file("f3", 3, 4, "B")},
		},
	}
	got, err := listSubfolders(context.Background(), lister, DriveTypeShared, "drv1", "", "", true)
	require.NoError(t, err)
	require.Len(t, got.Subfolders, 1)
	sub := got.Subfolders[0]
	assert.Equal(t, int64(1), sub.SubfolderCount)
	assert.Equal(t, int64(3), sub.FileCount)
	assert.Equal(t, int64(4), sub.ItemCount)
	assert.Equal(t, int64(123), sub.Size)
	assert.Equal(t, int64(136), sub.QuotaSize)
}

func TestListSubfoldersSharedRequiresDriveID(t *testing.T) {
	lister := &fakeLister{}
	_, err := listSubfolders(context.Background(), lister, DriveTypeShared, "", "", "", false)
	assert.Error(t, err)
}

func TestParseFolderURL(t *testing.T) {
	id, err := ParseFolderURL("https://drive.google.com/drive/folders/abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = ParseFolderURL("https://example.com/folders/abc123")
	assert.Error(t, err)

	_, err = ParseFolderURL("https://drive.google.com/drive/folders/")
	assert.Error(t, err)
}
