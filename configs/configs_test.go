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

package configs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtsplatform/dts/directory"
	"github.com/dtsplatform/dts/gdrive"
	"github.com/dtsplatform/dts/store"
)

type fakeEnumerator struct {
	// keyed by impersonated user for mydrive, drive id for shared
	subfolders map[string]*gdrive.SubfolderList
	info       map[string]*gdrive.FolderInfo
	roleGrants []string
}

func (f *fakeEnumerator) ListSubfolders(_ context.Context, driveType, sharedDriveID, impersonateUser, rootFolderID string, _ bool) (*gdrive.SubfolderList, error) {
	key := impersonateUser
	if driveType == gdrive.DriveTypeShared {
		key = sharedDriveID
	}
	if rootFolderID != "" {
		key += "/" + rootFolderID
	}
	if list, ok := f.subfolders[key]; ok {
		return list, nil
	}
	return &gdrive.SubfolderList{Parent: rootFolderID, Subfolders: []gdrive.Folder{}}, nil
}

func (f *fakeEnumerator) GetFolderInfo(_ context.Context, folderID, _ string) (*gdrive.FolderInfo, error) {
	if info, ok := f.info[folderID]; ok {
		return info, nil
	}
	return &gdrive.FolderInfo{ID: folderID}, nil
}

func (f *fakeEnumerator) ListSharedDrives(context.Context) ([]gdrive.SharedDrive, error) {
	return nil, nil
}

func (f *fakeEnumerator) AddRole(_ context.Context, fileID, role string, _ []string) error {
	f.roleGrants = append(f.roleGrants, fileID+":"+role)
	return nil
}

type fakeResolver struct {
	users  map[string]string
	groups map[string]*directory.Group
}

func (f *fakeResolver) ValidateUser(_ context.Context, email string) (string, error) {
	if id, ok := f.users[email]; ok {
		return id, nil
	}
	return "", directory.ErrUserNotFound
}

func (f *fakeResolver) ValidateGroup(_ context.Context, email string) (*directory.Group, error) {
	if g, ok := f.groups[email]; ok {
		return g, nil
	}
	return nil, directory.ErrGroupNotValid
}

func folders(names ...string) []gdrive.Folder {
	out := make([]gdrive.Folder, 0, len(names))
	for _, name := range names {
		out = append(out, gdrive.Folder{ID: "id-" + name, Name: name})
	}
	return out
}

func childFolderIDs(t *testing.T, ctx context.Context, children store.CollectionRef) map[string]string {
	t.Helper()
	snaps, err := children.Documents(ctx)
	require.NoError(t, err)
	out := map[string]string{}
	for _, snap := range snaps {
		cfg := store.GetMap(snap.Data(), "config")
		out[store.GetString(cfg, "root_folder_id")] = snap.ID()
	}
	return out
}

func TestAddSharedDriveFullDrive(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	drive := &fakeEnumerator{
		subfolders: map[string]*gdrive.SubfolderList{
			"drv1": {Parent: "drv1", Subfolders: folders("Reports", "Photos")},
		},
		info: map[string]*gdrive.FolderInfo{
			"drv1": {ID: "drv1", SharedDriveID: "drv1", SharedDriveName: "Research Data"},
		},
	}
	b := NewBuilder(mem, drive, &fakeResolver{}, []string{"sa@example.iam.gserviceaccount.com"}, 50)

	result, err := b.Add(ctx, &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeDrive,
		DriveType:     gdrive.DriveTypeShared,
		SharedDriveID: "drv1",
	})
	require.NoError(t, err)
	assert.Equal(t, "drive|shared|drv1", result.ConfigID)
	require.NotNil(t, result.ChildrenCount)
	assert.Equal(t, 2, *result.ChildrenCount)
	assert.Equal(t, []string{"drv1:organizer"}, drive.roleGrants)

	snap, err := mem.Collection(CollectionName).Doc("drive|shared|drv1").Get(ctx)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, "Research Data (Full Drive)", store.GetString(snap.Data(), "config_name"))
	cfg := store.GetMap(snap.Data(), "config")
	assert.Equal(t, "drv1", store.GetString(cfg, "team_drive"))
	_, hasRoot := cfg["root_folder_id"]
	assert.False(t, hasRoot)
}

func TestAddSharedDriveSubfolderAndMismatch(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	drive := &fakeEnumerator{
		subfolders: map[string]*gdrive.SubfolderList{
			"drv1/fold9": {Parent: "fold9", Subfolders: folders("Raw")},
		},
		info: map[string]*gdrive.FolderInfo{
			"fold9": {ID: "fold9", SharedDriveID: "drv1", SharedDriveName: "Research Data", RootFolderID: "fold9", RootFolderName: "2024"},
		},
	}
	b := NewBuilder(mem, drive, &fakeResolver{}, nil, 50)

	result, err := b.Add(ctx, &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeDrive,
		DriveType:     gdrive.DriveTypeShared,
		SharedDriveID: "drv1",
		URL:           "https://drive.google.com/drive/folders/fold9",
	})
	require.NoError(t, err)
	assert.Equal(t, "drive|shared|drv1|fold9", result.ConfigID)

	snap, err := mem.Collection(CollectionName).Doc(result.ConfigID).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Research Data|2024 (Subfolder)", store.GetString(snap.Data(), "config_name"))

	// A folder that lives on some other shared drive is a hard error.
	_, err = b.Add(ctx, &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeDrive,
		DriveType:     gdrive.DriveTypeShared,
		SharedDriveID: "otherdrive",
		URL:           "https://drive.google.com/drive/folders/fold9",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not part of the provided Shared Drive")
}

func TestAddSharedDriveReAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	drive := &fakeEnumerator{
		subfolders: map[string]*gdrive.SubfolderList{
			"drv1": {Parent: "drv1", Subfolders: folders("Reports")},
		},
		info: map[string]*gdrive.FolderInfo{
			"drv1": {ID: "drv1", SharedDriveID: "drv1", SharedDriveName: "Research Data"},
		},
	}
	b := NewBuilder(mem, drive, &fakeResolver{}, nil, 50)
	req := &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeDrive,
		DriveType:     gdrive.DriveTypeShared,
		SharedDriveID: "drv1",
	}

	_, err := b.Add(ctx, req)
	require.NoError(t, err)
	children := mem.Collection(CollectionName).Doc("drive|shared|drv1").Collection("children")
	first := childFolderIDs(t, ctx, children)
	require.Len(t, first, 1)

	// Second add with one extra subfolder upserts in place: the
	// existing child keeps its document id and the new folder appears.
	drive.subfolders["drv1"] = &gdrive.SubfolderList{Parent: "drv1", Subfolders: folders("Reports", "Photos")}
	result, err := b.Add(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, *result.ChildrenCount)

	second := childFolderIDs(t, ctx, children)
	require.Len(t, second, 2)
	assert.Equal(t, first["id-Reports"], second["id-Reports"])
}

func TestAddMyDriveDerivesIDFromDirectory(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	drive := &fakeEnumerator{
		subfolders: map[string]*gdrive.SubfolderList{
			"bob@example.com": {Parent: "bobroot", Subfolders: folders("Thesis")},
		},
	}
	dir := &fakeResolver{users: map[string]string{"bob@example.com": "100200300"}}
	b := NewBuilder(mem, drive, dir, nil, 50)

	result, err := b.Add(ctx, &AddRequest{
		UID:             "alice",
		StorageType:     StorageTypeDrive,
		DriveType:       gdrive.DriveTypeMyDrive,
		ImpersonateUser: "bob@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "drive|mydrive|100200300", result.ConfigID)

	snap, err := mem.Collection(CollectionName).Doc(result.ConfigID).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "My Drive|bob@example.com (Full Drive)", store.GetString(snap.Data(), "config_name"))
	cfg := store.GetMap(snap.Data(), "config")
	assert.Equal(t, "bobroot", store.GetString(cfg, "root_folder_id"))

	_, err = b.Add(ctx, &AddRequest{
		UID:             "alice",
		StorageType:     StorageTypeDrive,
		DriveType:       gdrive.DriveTypeMyDrive,
		ImpersonateUser: "stranger@elsewhere.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid member")
}

func TestAddGroupRebuildsMemberTree(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	drive := &fakeEnumerator{
		subfolders: map[string]*gdrive.SubfolderList{
			"bob@example.com":   {Parent: "bobroot", Subfolders: folders("Thesis", "Data")},
			"carol@example.com": {Parent: "carolroot", Subfolders: folders("Notes")},
		},
	}
	dir := &fakeResolver{groups: map[string]*directory.Group{
		"team@example.com": {
			GroupID:    "grp1",
			GroupEmail: "team@example.com",
			Members: []directory.Member{
				{ID: "m-bob", Email: "bob@example.com", Type: directory.MemberTypeUser},
				{ID: "m-carol", Email: "carol@example.com", Type: directory.MemberTypeUser},
				{ID: "m-nested", Email: "nested@example.com", Type: "GROUP"},
			},
		},
	}}
	b := NewBuilder(mem, drive, dir, nil, 50)

	result, err := b.Add(ctx, &AddRequest{
		UID:         "alice",
		StorageType: StorageTypeDrive,
		DriveType:   gdrive.DriveTypeGroup,
		Group:       "team@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "drive|group|team@example.com", result.ConfigID)
	require.NotNil(t, result.ChildrenCount)
	assert.Equal(t, 3, *result.ChildrenCount)

	configRef := mem.Collection(CollectionName).Doc(result.ConfigID)
	snap, err := configRef.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Group|team@example.com (2 users)", store.GetString(snap.Data(), "config_name"))

	members, err := configRef.Collection("members").Documents(ctx)
	require.NoError(t, err)
	require.Len(t, members, 2)

	// Carol leaves the group: the rebuild removes her member document
	// and all of its children.
	dir.groups["team@example.com"].Members = dir.groups["team@example.com"].Members[:1]
	result, err = b.Add(ctx, &AddRequest{
		UID:         "alice",
		StorageType: StorageTypeDrive,
		DriveType:   gdrive.DriveTypeGroup,
		Group:       "team@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, *result.ChildrenCount)

	members, err = configRef.Collection("members").Documents(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "m-bob", members[0].ID())
	carolChildren, err := configRef.Collection("members").Doc("m-carol").Collection("children").Documents(ctx)
	require.NoError(t, err)
	assert.Empty(t, carolChildren)
}

func TestAddGroupEnforcesUserLimit(t *testing.T) {
	ctx := context.Background()
	dir := &fakeResolver{groups: map[string]*directory.Group{
		"team@example.com": {
			GroupEmail: "team@example.com",
			Members: []directory.Member{
				{ID: "m1", Email: "a@example.com", Type: directory.MemberTypeUser},
				{ID: "m2", Email: "b@example.com", Type: directory.MemberTypeUser},
			},
		},
	}}
	b := NewBuilder(store.NewMemStore(), &fakeEnumerator{}, dir, nil, 1)

	_, err := b.Add(ctx, &AddRequest{
		UID:         "alice",
		StorageType: StorageTypeDrive,
		DriveType:   gdrive.DriveTypeGroup,
		Group:       "team@example.com",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds the current limit of: 1 users")
}

func TestAddGcsDerivesIDAndDefaults(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	b := NewBuilder(mem, &fakeEnumerator{}, &fakeResolver{}, nil, 50)

	result, err := b.Add(ctx, &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeGcs,
		ProjectNumber: "123456",
		Bucket:        "research-archive",
		Prefix:        "/2024/raw/",
	})
	require.NoError(t, err)
	assert.Equal(t, "gcs|123456|research-archive|2024:raw", result.ConfigID)
	assert.Nil(t, result.ChildrenCount)

	snap, err := mem.Collection(CollectionName).Doc(result.ConfigID).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "research-archive/2024/raw", store.GetString(snap.Data(), "config_name"))
	cfg := store.GetMap(snap.Data(), "config")
	assert.Equal(t, "private", store.GetString(cfg, "object_acl"))
	assert.Equal(t, "us", store.GetString(cfg, "location"))
	cmd := store.GetMap(snap.Data(), "command")
	assert.Equal(t, "2024/raw", store.GetString(cmd, "prefix"))

	// No prefix: no trailing segment in the id, no prefix in command.
	result, err = b.Add(ctx, &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeGcs,
		ProjectNumber: "123456",
		Bucket:        "research-archive",
	})
	require.NoError(t, err)
	assert.Equal(t, "gcs|123456|research-archive", result.ConfigID)
}

func TestAddRejectsBadRequests(t *testing.T) {
	b := NewBuilder(store.NewMemStore(), &fakeEnumerator{}, &fakeResolver{}, nil, 50)
	ctx := context.Background()

	_, err := b.Add(ctx, &AddRequest{StorageType: StorageTypeGcs})
	assert.ErrorContains(t, err, "no User ID")

	_, err = b.Add(ctx, &AddRequest{UID: "alice"})
	assert.ErrorContains(t, err, "storage_type")

	_, err = b.Add(ctx, &AddRequest{UID: "alice", StorageType: StorageTypeDrive, DriveType: "bogus"})
	assert.ErrorContains(t, err, "drive_type")

	_, err = b.Add(ctx, &AddRequest{UID: "alice", StorageType: StorageTypeDrive, DriveType: gdrive.DriveTypeShared})
	assert.ErrorContains(t, err, "no Shared Drive ID")

	_, err = b.Add(ctx, &AddRequest{UID: "alice", StorageType: StorageTypeGcs, ProjectNumber: "1"})
	assert.ErrorContains(t, err, "no GCS Bucket")
}

func TestListResolvesChildren(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	drive := &fakeEnumerator{
		subfolders: map[string]*gdrive.SubfolderList{
			"drv1": {Parent: "drv1", Subfolders: folders("Reports")},
		},
		info: map[string]*gdrive.FolderInfo{
			"drv1": {ID: "drv1", SharedDriveID: "drv1", SharedDriveName: "Research Data"},
		},
	}
	b := NewBuilder(mem, drive, &fakeResolver{}, nil, 50)

	_, err := b.Add(ctx, &AddRequest{
		UID:           "alice",
		StorageType:   StorageTypeDrive,
		DriveType:     gdrive.DriveTypeShared,
		SharedDriveID: "drv1",
	})
	require.NoError(t, err)
	_, err = b.Add(ctx, &AddRequest{
		UID:           "someoneelse",
		StorageType:   StorageTypeGcs,
		ProjectNumber: "123456",
		Bucket:        "other-bucket",
	})
	require.NoError(t, err)

	list, err := b.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	children, ok := list[0]["children"].([]store.Fields)
	require.True(t, ok)
	require.Len(t, children, 1)
	cfg := store.GetMap(children[0], "config")
	assert.Equal(t, "id-Reports", store.GetString(cfg, "root_folder_id"))

	all, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
