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
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
)

// Client implements Enumerator against the Drive v3 API. Per-user
// access ("mydrive" listings) goes through domain-wide delegation: the
// client impersonates the configured service account with the drive
// owner as the delegated subject.
type Client struct {
	// Service account carrying the domain-wide delegation grant.
	delegateSA string
}

func NewClient(delegateServiceAccount string) *Client {
	return &Client{delegateSA: delegateServiceAccount}
}

// service builds a Drive service acting as the given subject, or as the
// ambient service identity when subject is empty.
func (c *Client) service(ctx context.Context, subject string) (*drive.Service, error) {
	if subject == "" {
		svc, err := drive.NewService(ctx, option.WithScopes(drive.DriveScope))
		return svc, errors.Wrap(err, "failed to build Drive service")
	}
	if c.delegateSA == "" {
		return nil, errors.New("no delegate service account configured for Drive impersonation")
	}
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: c.delegateSA,
		Scopes:          []string{drive.DriveScope},
		Subject:         subject,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to impersonate %s as %s", c.delegateSA, subject)
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	return svc, errors.Wrap(err, "failed to build delegated Drive service")
}

const fileListFields = "nextPageToken, files(id,name,mimeType,size,quotaBytesUsed,parents,driveId)"

func (c *Client) listFolders(ctx context.Context, driveType, driveID, impersonateUser string) ([]driveFile, error) {
	svc, err := c.service(ctx, impersonateUser)
	if err != nil {
		return nil, err
	}

	call := svc.Files.List().
		Q(fmt.Sprintf("mimeType = '%s' and trashed = false", folderMimeType)).
		Fields(fileListFields).
		Spaces("drive")
	if driveType == DriveTypeShared {
		call = call.Corpora("drive").
			DriveId(driveID).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
	} else {
		call = call.Corpora("user")
	}
	return drainFileList(ctx, call)
}

func (c *Client) listChildren(ctx context.Context, driveType, driveID, folderID, impersonateUser string) ([]driveFile, error) {
	svc, err := c.service(ctx, impersonateUser)
	if err != nil {
		return nil, err
	}

	call := svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
		Fields(fileListFields).
		Spaces("drive")
	if driveType == DriveTypeShared {
		call = call.Corpora("drive").
			DriveId(driveID).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true)
	} else {
		call = call.Corpora("user")
	}
	return drainFileList(ctx, call)
}

// drainFileList follows pagination tokens until the listing is
// exhausted.
func drainFileList(ctx context.Context, call *drive.FilesListCall) ([]driveFile, error) {
	var files []driveFile
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			files = append(files, driveFile{
				ID:             f.Id,
				Name:           f.Name,
				MimeType:       f.MimeType,
				Size:           f.Size,
				QuotaBytesUsed: f.QuotaBytesUsed,
				Parents:        f.Parents,
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "Drive file listing failed")
	}
	return files, nil
}

func (c *Client) ListSubfolders(ctx context.Context, driveType, driveID, impersonateUser, rootFolderID string, recursive bool) (*SubfolderList, error) {
	return listSubfolders(ctx, c, driveType, driveID, impersonateUser, rootFolderID, recursive)
}

func (c *Client) GetFolderInfo(ctx context.Context, folderID, impersonateUser string) (*FolderInfo, error) {
	svc, err := c.service(ctx, impersonateUser)
	if err != nil {
		return nil, err
	}

	folder, err := svc.Files.Get(folderID).
		SupportsAllDrives(true).
		Fields("id,name,mimeType,driveId").
		Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch folder %s", folderID)
	}
	if folder.MimeType != folderMimeType {
		return nil, errors.New("the URL provided must be for a Shared Drive or Shared/My Drive sub-folder")
	}

	info := &FolderInfo{ID: folder.Id}
	if folder.DriveId != "" {
		info.SharedDriveID = folder.DriveId
		sharedDrive, err := svc.Drives.Get(folder.DriveId).
			UseDomainAdminAccess(true).
			Context(ctx).Do()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch shared drive %s", folder.DriveId)
		}
		info.SharedDriveName = sharedDrive.Name
		if folder.Id != folder.DriveId {
			info.RootFolderID = folder.Id
			info.RootFolderName = folder.Name
		}
	} else {
		info.RootFolderID = folder.Id
		info.RootFolderName = folder.Name
	}
	return info, nil
}

func (c *Client) ListSharedDrives(ctx context.Context) ([]SharedDrive, error) {
	svc, err := c.service(ctx, "")
	if err != nil {
		return nil, err
	}

	var drives []SharedDrive
	err = svc.Drives.List().
		UseDomainAdminAccess(true).
		Pages(ctx, func(page *drive.DriveList) error {
			for _, d := range page.Drives {
				drives = append(drives, SharedDrive{ID: d.Id, Name: d.Name})
			}
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list shared drives")
	}
	return drives, nil
}

func (c *Client) AddRole(ctx context.Context, folderID, role string, principals []string) error {
	svc, err := c.service(ctx, "")
	if err != nil {
		return err
	}

	for _, principal := range principals {
		_, err := svc.Permissions.Create(folderID, &drive.Permission{
			Type:         "user",
			Role:         role,
			EmailAddress: principal,
		}).
			SupportsAllDrives(true).
			UseDomainAdminAccess(true).
			Context(ctx).Do()
		if err != nil {
			return errors.Wrapf(err, "failed to assign %s on folder %s to %s", role, folderID, principal)
		}
		log.Debugf("Granted %s on folder %s to %s", role, folderID, principal)
	}
	return nil
}
