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
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// driveFile is the subset of a Drive file resource the enumeration
// logic needs.
type driveFile struct {
	ID             string
	Name           string
	MimeType       string
	Size           int64
	QuotaBytesUsed int64
	Parents        []string
}

// fileLister abstracts the raw Drive queries so the tree logic can be
// exercised without the API.
type fileLister interface {
	// listFolders returns every (non-trashed) folder visible in the
	// drive corpus: the whole shared drive for "shared", the
	// impersonated user's My Drive for "mydrive".
	listFolders(ctx context.Context, driveType, driveID, impersonate string) ([]driveFile, error)
	// listChildren returns the immediate children (files and folders)
	// of one folder.
	listChildren(ctx context.Context, driveType, driveID, folderID, impersonate string) ([]driveFile, error)
}

// listSubfolders builds the one-level subfolder listing described on
// Enumerator.ListSubfolders using the given lister.
func listSubfolders(ctx context.Context, lister fileLister, driveType, driveID, impersonate, rootFolderID string, recursive bool) (*SubfolderList, error) {
	if driveType == DriveTypeShared && driveID == "" {
		return nil, errors.New(`Shared Drive ID must be provided if Drive Type is set to "shared"`)
	}

	folders, err := lister.listFolders(ctx, driveType, driveID, impersonate)
	if err != nil {
		return nil, err
	}

	result := &SubfolderList{Subfolders: []Folder{}}
	if len(folders) == 0 {
		return result, nil
	}

	parent := rootFolderID
	if parent == "" {
		switch driveType {
		case DriveTypeShared:
			// Folders parented directly on the drive id are top level.
			parent = driveID
		case DriveTypeMyDrive:
			parent = inferMyDriveRoot(folders, impersonate)
			if parent == "" {
				return result, nil
			}
		}
	}
	result.Parent = parent

	for _, folder := range folders {
		if !hasParent(folder, parent) {
			continue
		}
		sub := Folder{
			ID:   folder.ID,
			Name: folder.Name,
			URL:  FolderURL(folder.ID),
		}
		if recursive {
			spec, err := measureFolder(ctx, lister, driveType, driveID, folder.ID, impersonate)
			if err != nil {
				return nil, err
			}
			sub.SubfolderCount = spec.SubfolderCount
			sub.FileCount = spec.FileCount
			sub.ItemCount = spec.ItemCount
			sub.Size = spec.Size
			sub.QuotaSize = spec.QuotaSize
		}
		result.Subfolders = append(result.Subfolders, sub)
	}
	return result, nil
}

// inferMyDriveRoot finds the My Drive root among a full folder listing:
// the folder id that appears as somebody's parent but never as a listed
// folder itself. With disjoint trees in one listing more than one id
// qualifies; the lexicographically first is chosen so repeated
// enumerations agree, and the ambiguity is logged.
func inferMyDriveRoot(folders []driveFile, impersonate string) string {
	listed := make(map[string]bool, len(folders))
	for _, f := range folders {
		listed[f.ID] = true
	}
	candidateSet := map[string]bool{}
	for _, f := range folders {
		for _, p := range f.Parents {
			if !listed[p] {
				candidateSet[p] = true
			}
		}
	}
	if len(candidateSet) == 0 {
		return ""
	}
	candidates := make([]string, 0, len(candidateSet))
	for id := range candidateSet {
		candidates = append(candidates, id)
	}
	sort.Strings(candidates)
	if len(candidates) > 1 {
		log.Warnf("My Drive listing for %s has %d root candidates %v; using %s",
			impersonate, len(candidates), candidates, candidates[0])
	}
	return candidates[0]
}

// folderSpec carries the aggregate statistics of one folder's subtree.
type folderSpec struct {
	SubfolderCount int64
	FileCount      int64
	ItemCount      int64
	Size           int64
	QuotaSize      int64
}

// measureFolder walks the folder's entire descendant tree, summing file
// and folder counts, raw byte size, and storage-quota byte size.
func measureFolder(ctx context.Context, lister fileLister, driveType, driveID, folderID, impersonate string) (*folderSpec, error) {
	children, err := lister.listChildren(ctx, driveType, driveID, folderID, impersonate)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list children of folder %s", folderID)
	}

	spec := &folderSpec{}
	for _, child := range children {
		if child.MimeType == folderMimeType {
			spec.SubfolderCount++
			childSpec, err := measureFolder(ctx, lister, driveType, driveID, child.ID, impersonate)
			if err != nil {
				return nil, err
			}
			spec.SubfolderCount += childSpec.SubfolderCount
			spec.FileCount += childSpec.FileCount
			spec.Size += childSpec.Size
			spec.QuotaSize += childSpec.QuotaSize
		} else {
			spec.FileCount++
			spec.Size += child.Size
			spec.QuotaSize += child.QuotaBytesUsed
		}
	}
	spec.ItemCount = spec.SubfolderCount + spec.FileCount
	return spec, nil
}

func hasParent(f driveFile, parent string) bool {
	for _, p := range f.Parents {
		if p == parent {
			return true
		}
	}
	return false
}
