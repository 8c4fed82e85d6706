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

// Package configs materializes transfer-endpoint configurations.
//
// A configuration identifies one endpoint of a transfer: a Google
// Drive scope (a shared drive, a user's My Drive, or every My Drive of
// a group's members, optionally narrowed to a subfolder) or a Cloud
// Storage bucket/prefix. Drive configurations own a tree of child
// records, one per discovered subfolder; group configurations add an
// intermediate member level.
//
// Configuration ids derive deterministically from the endpoint
// identity, so re-adding the same endpoint merges into the existing
// record. Children of simple drive scopes reconcile additively (upsert
// by folder id, stale children untouched); the member tree of a group
// scope is torn down and rebuilt on every add.
package configs

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dtsplatform/dts/directory"
	"github.com/dtsplatform/dts/gdrive"
	"github.com/dtsplatform/dts/store"
)

// CollectionName is the top-level store collection holding
// configurations.
const CollectionName = "configs"

const (
	StorageTypeDrive = "drive"
	StorageTypeGcs   = "gcs"
)

// Builder turns add-configuration requests into persisted
// configuration trees.
type Builder struct {
	store store.Store
	drive gdrive.Enumerator
	dir   directory.Resolver
	// Principals granted the organizer role on shared drive roots.
	organizerPrincipals []string
	groupUserLimit      int
}

func NewBuilder(s store.Store, drive gdrive.Enumerator, dir directory.Resolver, organizerPrincipals []string, groupUserLimit int) *Builder {
	return &Builder{
		store:               s,
		drive:               drive,
		dir:                 dir,
		organizerPrincipals: organizerPrincipals,
		groupUserLimit:      groupUserLimit,
	}
}

// AddRequest carries the union of fields accepted by /configs/add.
type AddRequest struct {
	UID         string `json:"uid"`
	StorageType string `json:"storage_type"`

	// drive fields
	DriveType       string `json:"drive_type"`
	SharedDriveID   string `json:"shared_drive_id"`
	URL             string `json:"url"`
	ImpersonateUser string `json:"impersonate_user"`
	Group           string `json:"group"`

	// gcs fields
	ProjectNumber string `json:"project_number"`
	Bucket        string `json:"bucket"`
	Prefix        string `json:"prefix"`
	ObjectACL     string `json:"object_acl"`
	BucketACL     string `json:"bucket_acl"`
	Location      string `json:"location"`
	StorageClass  string `json:"storage_class"`
}

type AddResult struct {
	StorageType   string    `json:"storage_type"`
	ConfigID      string    `json:"config_id"`
	CreatedTime   time.Time `json:"created_time"`
	ChildrenCount *int      `json:"children_count,omitempty"`
}

// memberPlan is one expanded group member awaiting persistence.
type memberPlan struct {
	email        string
	id           string
	rootFolderID string
	subfolders   []gdrive.Folder
}

// plan is everything Add computes before touching the store.
type plan struct {
	configID      string
	configName    string
	configDetails store.Fields
	command       store.Fields
	subfolders    *gdrive.SubfolderList
	members       []memberPlan
}

// Add builds or merges the configuration (and its child tree) described
// by the request.
func (b *Builder) Add(ctx context.Context, req *AddRequest) (*AddResult, error) {
	if req.UID == "" {
		return nil, errors.New("no User ID (uid) in request")
	}

	var p *plan
	var err error
	switch req.StorageType {
	case StorageTypeDrive:
		switch req.DriveType {
		case gdrive.DriveTypeShared:
			p, err = b.planShared(ctx, req)
		case gdrive.DriveTypeMyDrive:
			p, err = b.planMyDrive(ctx, req)
		case gdrive.DriveTypeGroup:
			p, err = b.planGroup(ctx, req)
		default:
			return nil, errors.New(`if "storage_type" is set to "drive", the "drive_type" argument must be set to "shared", "mydrive", or "group"`)
		}
	case StorageTypeGcs:
		p, err = planGcs(req)
	default:
		return nil, errors.New(`no Storage Type (storage_type) in request. The "storage_type" argument must be set to "gcs" or "drive"`)
	}
	if err != nil {
		return nil, err
	}

	created := time.Now()
	configRef := b.store.Collection(CollectionName).Doc(p.configID)
	err = configRef.Set(ctx, store.Fields{
		"config_id":    p.configID,
		"config_name":  p.configName,
		"user_id":      req.UID,
		"storage_type": req.StorageType,
		"created":      created,
		"command":      p.command,
		"config":       p.configDetails,
	}, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to persist configuration")
	}

	result := &AddResult{
		StorageType: req.StorageType,
		ConfigID:    p.configID,
		CreatedTime: created,
	}
	if req.StorageType != StorageTypeDrive {
		return result, nil
	}

	var count int
	if req.DriveType == gdrive.DriveTypeGroup {
		count, err = b.rebuildMemberTree(ctx, configRef, p.members)
	} else {
		count, err = b.upsertChildren(ctx, configRef.Collection("children"), req, p)
	}
	if err != nil {
		return nil, err
	}
	result.ChildrenCount = &count
	return result, nil
}

func (b *Builder) planShared(ctx context.Context, req *AddRequest) (*plan, error) {
	if req.SharedDriveID == "" {
		return nil, errors.New(`no Shared Drive ID in request where Drive Type (drive_type) is set to "shared"`)
	}

	// The transfer workers need organizer rights on the drive to read
	// everything under it.
	if err := b.drive.AddRole(ctx, req.SharedDriveID, "organizer", b.organizerPrincipals); err != nil {
		return nil, errors.Wrap(err, "could not grant service accounts Organizer role on the Shared Drive root")
	}
	log.Infof("Shared Drive %s: granted service accounts Organizer role", req.SharedDriveID)

	p := &plan{command: store.Fields{"drive_type": gdrive.DriveTypeShared}}

	var info *gdrive.FolderInfo
	rootFolderID := ""
	if req.URL != "" {
		folderID, err := gdrive.ParseFolderURL(req.URL)
		if err != nil {
			return nil, err
		}
		info, err = b.drive.GetFolderInfo(ctx, folderID, "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve Drive folder from URL")
		}
		if info.SharedDriveID != req.SharedDriveID {
			return nil, errors.New("folder URL is not part of the provided Shared Drive")
		}
		rootFolderID = info.RootFolderID
		p.configDetails = store.Fields{
			"storage_type":   StorageTypeDrive,
			"team_drive":     info.SharedDriveID,
			"root_folder_id": rootFolderID,
			"scope":          "drive",
		}
	} else {
		var err error
		info, err = b.drive.GetFolderInfo(ctx, req.SharedDriveID, "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve Shared Drive")
		}
		p.configDetails = store.Fields{
			"storage_type": StorageTypeDrive,
			"team_drive":   req.SharedDriveID,
			"scope":        "drive",
		}
	}

	subfolders, err := b.drive.ListSubfolders(ctx, gdrive.DriveTypeShared, req.SharedDriveID, "", rootFolderID, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate Shared Drive subfolders")
	}
	p.subfolders = subfolders

	p.configName = info.SharedDriveName
	if rootFolderID == "" {
		p.configName += " (Full Drive)"
	} else {
		p.configName += "|" + info.RootFolderName + " (Subfolder)"
	}

	p.configID = strings.Join([]string{StorageTypeDrive, gdrive.DriveTypeShared, req.SharedDriveID}, "|")
	if rootFolderID != "" && rootFolderID != req.SharedDriveID {
		p.configID += "|" + rootFolderID
	}
	return p, nil
}

func (b *Builder) planMyDrive(ctx context.Context, req *AddRequest) (*plan, error) {
	if req.ImpersonateUser == "" {
		return nil, errors.New(`if "drive_type" is set to "mydrive", the My Drive owner's email address must be provided in "impersonate_user"`)
	}
	userID, err := b.dir.ValidateUser(ctx, req.ImpersonateUser)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, errors.New(`the provided "impersonate_user" is not a valid member of this Workspace organization`)
		}
		return nil, errors.Wrap(err, "failed to validate impersonated user")
	}
	log.Infof("My Drive: validated %s is a member of this organization", req.ImpersonateUser)

	p := &plan{command: store.Fields{
		"drive_type":       gdrive.DriveTypeMyDrive,
		"impersonate_user": req.ImpersonateUser,
	}}

	rootFolderID := ""
	rootFolderName := ""
	if req.URL != "" {
		folderID, err := gdrive.ParseFolderURL(req.URL)
		if err != nil {
			return nil, err
		}
		info, err := b.drive.GetFolderInfo(ctx, folderID, req.ImpersonateUser)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve Drive folder from URL")
		}
		rootFolderID = info.RootFolderID
		rootFolderName = info.RootFolderName
	}

	subfolders, err := b.drive.ListSubfolders(ctx, gdrive.DriveTypeMyDrive, "", req.ImpersonateUser, rootFolderID, false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate My Drive subfolders")
	}
	p.subfolders = subfolders
	p.configDetails = store.Fields{
		"storage_type":   StorageTypeDrive,
		"root_folder_id": subfolders.Parent,
		"scope":          "drive",
	}

	p.configName = "My Drive|" + req.ImpersonateUser
	if rootFolderID == "" {
		p.configName += " (Full Drive)"
	} else {
		p.configName += "|" + rootFolderName + " (Subfolder)"
	}

	p.configID = strings.Join([]string{StorageTypeDrive, gdrive.DriveTypeMyDrive, userID}, "|")
	if rootFolderID != "" {
		p.configID += "|" + rootFolderID
	}
	return p, nil
}

func (b *Builder) planGroup(ctx context.Context, req *AddRequest) (*plan, error) {
	if req.Group == "" {
		return nil, errors.New(`if "drive_type" is set to "group", the Google Group ID must be provided in "group"`)
	}
	group, err := b.dir.ValidateGroup(ctx, req.Group)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate Google Group")
	}

	p := &plan{command: store.Fields{"drive_type": gdrive.DriveTypeGroup}}

	for _, member := range group.Members {
		// Nested groups and service identities are skipped, not
		// expanded recursively.
		if member.Type != directory.MemberTypeUser {
			log.Debugf("Group %s: skipping member %s of type %s", req.Group, member.Email, member.Type)
			continue
		}
		subfolders, err := b.drive.ListSubfolders(ctx, gdrive.DriveTypeMyDrive, "", member.Email, "", false)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to enumerate My Drive of group member %s", member.Email)
		}
		p.members = append(p.members, memberPlan{
			email:        member.Email,
			id:           member.ID,
			rootFolderID: subfolders.Parent,
			subfolders:   subfolders.Subfolders,
		})
	}

	if len(p.members) == 0 {
		return nil, errors.New("no users in the provided Google Group")
	}
	if len(p.members) > b.groupUserLimit {
		return nil, errors.Errorf("number of users in the Google Group exceeds the current limit of: %d users", b.groupUserLimit)
	}

	p.configDetails = store.Fields{
		"storage_type": StorageTypeDrive,
		"scope":        "drive",
	}
	p.configName = "Group|" + group.GroupEmail + " (" + strconv.Itoa(len(p.members)) + " users)"
	p.configID = strings.Join([]string{StorageTypeDrive, gdrive.DriveTypeGroup, req.Group}, "|")
	return p, nil
}

func planGcs(req *AddRequest) (*plan, error) {
	if req.ProjectNumber == "" {
		return nil, errors.New("no Project Number (project_number) in request")
	}
	if req.Bucket == "" {
		return nil, errors.New("no GCS Bucket (bucket) in request. This Bucket name must be globally unique.")
	}

	p := &plan{command: store.Fields{"bucket": req.Bucket}}

	prefix := strings.Trim(req.Prefix, "/")
	if prefix != "" {
		p.command["prefix"] = prefix
	}

	p.configName = req.Bucket
	if prefix != "" {
		p.configName += "/" + prefix
	}

	p.configID = strings.Join([]string{StorageTypeGcs, req.ProjectNumber, req.Bucket}, "|")
	if prefix != "" {
		p.configID += "|" + strings.ReplaceAll(prefix, "/", ":")
	}

	p.configDetails = store.Fields{
		"project_number": req.ProjectNumber,
		"object_acl":     defaultString(req.ObjectACL, "private"),
		"bucket_acl":     defaultString(req.BucketACL, "private"),
		"location":       defaultString(req.Location, "us"),
		"storage_class":  req.StorageClass,
		"storage_type":   StorageTypeGcs,
	}
	return p, nil
}

// upsertChildren reconciles the flat child set of a shared/mydrive
// configuration additively: a child with a matching folder id is merged
// in place, anything else becomes a new document, and children absent
// from the listing are left untouched.
func (b *Builder) upsertChildren(ctx context.Context, children store.CollectionRef, req *AddRequest, p *plan) (int, error) {
	count := 0
	for _, subfolder := range p.subfolders.Subfolders {
		childConfig := store.Fields{
			"scope":          "drive",
			"storage_type":   StorageTypeDrive,
			"root_folder_id": subfolder.ID,
		}
		childCommand := store.Fields{
			"drive_type":  req.DriveType,
			"folder_name": subfolder.Name,
		}
		if req.DriveType == gdrive.DriveTypeShared {
			childConfig["team_drive"] = req.SharedDriveID
		} else {
			childCommand["impersonate_user"] = req.ImpersonateUser
		}

		if err := upsertByFolderID(ctx, children, subfolder.ID, store.Fields{
			"config":  childConfig,
			"command": childCommand,
		}); err != nil {
			return 0, err
		}
		count++
	}
	return count, nil
}

// rebuildMemberTree implements the destructive reconciliation of group
// scopes: the entire members/children subtree is deleted and recreated
// from the freshly expanded membership.
func (b *Builder) rebuildMemberTree(ctx context.Context, configRef store.DocRef, members []memberPlan) (int, error) {
	existing, err := configRef.Collection("members").DocumentRefs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list existing member configurations")
	}
	for _, memberRef := range existing {
		childRefs, err := memberRef.Collection("children").DocumentRefs(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "failed to list existing member children")
		}
		for _, childRef := range childRefs {
			log.Debugf("Deleting child document %s for member %s", childRef.ID(), memberRef.ID())
			if err := childRef.Delete(ctx); err != nil {
				return 0, errors.Wrap(err, "failed to delete stale member child")
			}
		}
		log.Debugf("Deleting member document %s", memberRef.ID())
		if err := memberRef.Delete(ctx); err != nil {
			return 0, errors.Wrap(err, "failed to delete stale member configuration")
		}
	}

	count := 0
	for _, member := range members {
		memberRef := configRef.Collection("members").Doc(member.id)
		err := memberRef.Set(ctx, store.Fields{
			"storage_type": StorageTypeDrive,
			"config": store.Fields{
				"root_folder_id": member.rootFolderID,
				"scope":          "drive",
				"storage_type":   StorageTypeDrive,
			},
			"command": store.Fields{
				"drive_type":       gdrive.DriveTypeMyDrive,
				"impersonate_user": member.email,
			},
		}, true)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to persist member configuration for %s", member.email)
		}

		for _, subfolder := range member.subfolders {
			err := upsertByFolderID(ctx, memberRef.Collection("children"), subfolder.ID, store.Fields{
				"config": store.Fields{
					"scope":          "drive",
					"storage_type":   StorageTypeDrive,
					"root_folder_id": subfolder.ID,
				},
				"command": store.Fields{
					"drive_type":       gdrive.DriveTypeMyDrive,
					"folder_name":      subfolder.Name,
					"impersonate_user": member.email,
				},
			})
			if err != nil {
				return 0, err
			}
			count++
		}
	}
	return count, nil
}

// upsertByFolderID merges into the existing child document whose
// config.root_folder_id matches, or creates a fresh document.
func upsertByFolderID(ctx context.Context, children store.CollectionRef, folderID string, data store.Fields) error {
	matches, err := children.Where(ctx, "config.root_folder_id", folderID)
	if err != nil {
		return errors.Wrap(err, "failed to query existing child configurations")
	}
	var ref store.DocRef
	if len(matches) > 0 {
		ref = matches[0].Ref()
	} else {
		ref = children.NewDoc()
	}
	return errors.Wrap(ref.Set(ctx, data, true), "failed to persist child configuration")
}

// List returns configurations (optionally filtered by user), each with
// its flat children resolved inline.
func (b *Builder) List(ctx context.Context, uid string) ([]store.Fields, error) {
	col := b.store.Collection(CollectionName)
	var snaps []store.Snapshot
	var err error
	if uid != "" {
		snaps, err = col.Where(ctx, "user_id", uid)
	} else {
		snaps, err = col.Documents(ctx)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list configurations")
	}

	configList := make([]store.Fields, 0, len(snaps))
	for _, snap := range snaps {
		data := snap.Data()
		colNames, err := snap.Ref().Collections(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list configuration sub-collections")
		}
		for _, name := range colNames {
			if name != "children" {
				continue
			}
			children := []store.Fields{}
			childSnaps, err := snap.Ref().Collection("children").Documents(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "failed to fetch child configurations")
			}
			for _, child := range childSnaps {
				children = append(children, child.Data())
			}
			data["children"] = children
		}
		configList = append(configList, data)
	}
	return configList, nil
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

