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

// Package gdrive enumerates Google Drive folder hierarchies: immediate
// subfolders of a Shared Drive or My Drive root (or of an arbitrary
// subfolder), with optional recursively aggregated size and item counts.
package gdrive

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
)

// Drive sub-kinds accepted in requests and stored in command blocks.
const (
	DriveTypeShared  = "shared"
	DriveTypeMyDrive = "mydrive"
	DriveTypeGroup   = "group"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Folder is one discovered subfolder together with its aggregate
// statistics. Aggregates are zero unless the enumeration was recursive.
type Folder struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	SubfolderCount int64  `json:"subfolder_count"`
	FileCount      int64  `json:"file_count"`
	ItemCount      int64  `json:"item_count"`
	Size           int64  `json:"size"`
	QuotaSize      int64  `json:"quota_size"`
}

// SubfolderList is the result of enumerating one level of a Drive tree.
// Parent is empty when no folders were found at all.
type SubfolderList struct {
	Parent     string   `json:"parent"`
	Subfolders []Folder `json:"subfolders"`
}

// FolderInfo describes a folder resolved from a Drive URL. The shared
// drive fields are empty for My Drive folders; the root folder fields
// are empty when the URL points at a shared drive root itself.
type FolderInfo struct {
	ID              string
	SharedDriveID   string
	SharedDriveName string
	RootFolderID    string
	RootFolderName  string
}

// SharedDrive is one organization-owned drive.
type SharedDrive struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Enumerator is the read (plus one permission-grant side effect)
// interface onto Google Drive consumed by the configuration builder and
// the API handlers.
type Enumerator interface {
	// ListSubfolders lists the immediate subfolders under rootFolderID,
	// or under the drive root when rootFolderID is empty. For the
	// "mydrive" sub-kind impersonate names the drive owner; for "shared"
	// driveID names the shared drive. With recursive set, each
	// subfolder's aggregate statistics cover its entire descendant tree.
	ListSubfolders(ctx context.Context, driveType, driveID, impersonate, rootFolderID string, recursive bool) (*SubfolderList, error)
	// GetFolderInfo resolves folder metadata (and its owning shared
	// drive, if any) for a folder id. impersonate may be empty.
	GetFolderInfo(ctx context.Context, folderID, impersonate string) (*FolderInfo, error)
	// ListSharedDrives returns every shared drive in the organization.
	ListSharedDrives(ctx context.Context) ([]SharedDrive, error)
	// AddRole grants the named role on a folder (or shared drive root)
	// to each principal.
	AddRole(ctx context.Context, folderID, role string, principals []string) error
}

// Accepts canonical folder URLs, the /u/<n>/ account-switcher variant,
// and trailing query parameters.
var folderURLRe = regexp.MustCompile(`^https://drive\.google\.com/drive/(?:u/\d+/)?folders/([a-zA-Z0-9_-]+)`)

// ParseFolderURL extracts the folder id from a Drive folder URL.
func ParseFolderURL(url string) (string, error) {
	m := folderURLRe.FindStringSubmatch(url)
	if m == nil {
		return "", errors.New("could not parse Drive Folder ID from Drive URL (url)")
	}
	return m[1], nil
}

// FolderURL is the inverse of ParseFolderURL.
func FolderURL(folderID string) string {
	return "https://drive.google.com/drive/folders/" + folderID
}
