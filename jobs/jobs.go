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

// Package jobs materializes transfer jobs from configuration trees and
// hands them to the workflow engine.
//
// A job references a source and a destination configuration by store
// path. Creating a job mirrors the source configuration's child tree
// (or member/child tree for group sources) into sub-job documents under
// the job, each carrying monitoring defaults, and emits the rclone spec
// files the workers read. Materialization is all-or-nothing: any
// failure after the top-level job document exists deletes that document
// again before the error is returned, so orphaned job trees are never
// observable.
package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dtsplatform/dts/configs"
	"github.com/dtsplatform/dts/gdrive"
	"github.com/dtsplatform/dts/rclone"
	"github.com/dtsplatform/dts/store"
	"github.com/dtsplatform/dts/workflow"
)

// CollectionName is the top-level store collection holding jobs.
const CollectionName = "jobs"

const (
	defaultUserType = "admin"
	defaultJobType  = "copy"
)

// Engine creates, lists, and starts transfer jobs.
type Engine struct {
	store     store.Store
	specs     rclone.SpecWriter
	submitter workflow.Submitter

	projectID   string
	environment string
}

func NewEngine(s store.Store, specs rclone.SpecWriter, submitter workflow.Submitter, projectID, environment string) *Engine {
	return &Engine{
		store:       s,
		specs:       specs,
		submitter:   submitter,
		projectID:   projectID,
		environment: environment,
	}
}

type AddRequest struct {
	UID         string `json:"uid"`
	SrcConfigID string `json:"src_config_id"`
	DstConfigID string `json:"dst_config_id"`
	NotifyUsers string `json:"notify_users"`
	UserType    string `json:"user_type"`
	JobType     string `json:"job_type"`
}

type AddResult struct {
	JobID         string `json:"job_id"`
	ChildrenCount int    `json:"children_count"`
}

type StartResult struct {
	JobID       string `json:"job_id"`
	WorkflowURL string `json:"workflow_url"`
	Workflow    string `json:"-"`
}

// monitoringDefaults is the initial observability block every job and
// sub-job document starts with. The workflow engine rewrites these
// fields as the transfer progresses.
func monitoringDefaults() store.Fields {
	return store.Fields{
		"job_created":    time.Now(),
		"status":         "pending",
		"status_updated": time.Now(),
		"job_started":    time.Now(),
		"job_completed":  "",
		"job_duration":   0,
		"job_error":      "",
	}
}

func splitNotifyUsers(raw string) []string {
	users := []string{}
	for _, user := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(user); trimmed != "" {
			users = append(users, trimmed)
		}
	}
	return users
}

// Add materializes a job from a source/destination configuration pair.
func (e *Engine) Add(ctx context.Context, req *AddRequest) (*AddResult, error) {
	if req.UID == "" {
		return nil, errors.New("no User ID (uid) in request")
	}
	if req.SrcConfigID == "" || req.DstConfigID == "" {
		return nil, errors.New("both a Source Config ID (src_config_id) and a Destination Config ID (dst_config_id) must be provided")
	}

	srcRef := e.store.Collection(configs.CollectionName).Doc(req.SrcConfigID)
	dstRef := e.store.Collection(configs.CollectionName).Doc(req.DstConfigID)

	srcSnap, err := srcRef.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch source configuration")
	}
	if !srcSnap.Exists() {
		return nil, errors.Errorf("source configuration %s does not exist", req.SrcConfigID)
	}
	dstSnap, err := dstRef.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch destination configuration")
	}
	if !dstSnap.Exists() {
		return nil, errors.Errorf("destination configuration %s does not exist", req.DstConfigID)
	}

	srcType := store.GetString(store.GetMap(srcSnap.Data(), "command"), "drive_type")
	userType := req.UserType
	if userType == "" {
		userType = defaultUserType
	}
	jobType := req.JobType
	if jobType == "" {
		jobType = defaultJobType
	}

	jobDetails := store.Fields{
		"user_id":      req.UID,
		"user_type":    userType,
		"job_type":     jobType,
		"src_config":   srcRef.Path(),
		"src_name":     store.GetString(srcSnap.Data(), "config_name"),
		"src_type":     srcType,
		"dst_config":   dstRef.Path(),
		"dst_name":     store.GetString(dstSnap.Data(), "config_name"),
		"notify_users": splitNotifyUsers(req.NotifyUsers),
	}
	for k, v := range monitoringDefaults() {
		jobDetails[k] = v
	}

	jobRef := e.store.Collection(CollectionName).NewDoc()
	if err := jobRef.Set(ctx, jobDetails, false); err != nil {
		return nil, errors.Wrap(err, "failed to create job document")
	}

	count, err := e.materialize(ctx, jobRef, srcRef, dstRef, srcType, userType)
	if err != nil {
		// Remove the half-built job so a failed add leaves nothing
		// behind. Sub-job documents under a deleted parent are
		// unreachable from job listings.
		log.Warnf("Job %s: materialization failed, rolling back: %v", jobRef.ID(), err)
		if delErr := jobRef.Delete(ctx); delErr != nil {
			log.Errorf("Job %s: rollback delete failed: %v", jobRef.ID(), delErr)
		}
		return nil, err
	}

	return &AddResult{JobID: jobRef.ID(), ChildrenCount: count}, nil
}

// materialize mirrors the source configuration tree under the job and
// writes the rclone spec files. The returned count covers every sub-job
// document created.
func (e *Engine) materialize(ctx context.Context, jobRef, srcRef, dstRef store.DocRef, srcType, userType string) (int, error) {
	if srcType == gdrive.DriveTypeGroup {
		return e.materializeGroup(ctx, jobRef, srcRef, dstRef, userType)
	}

	children, err := srcRef.Collection("children").Documents(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list source configuration children")
	}
	for _, child := range children {
		err := jobRef.Collection("children").Doc(child.ID()).Set(ctx, withMonitoring(store.Fields{
			"src_child_config_ref": child.Ref().Path(),
		}), false)
		if err != nil {
			return 0, errors.Wrap(err, "failed to create child job document")
		}
	}

	if err := e.specs.CreateConfigFile(ctx, jobRef.ID(), srcRef, dstRef, userType); err != nil {
		return 0, errors.Wrap(err, "failed to write rclone config file")
	}
	if _, err := e.specs.CreateFilterFile(ctx, jobRef.ID(), srcRef); err != nil {
		return 0, errors.Wrap(err, "failed to write rclone filter file")
	}
	return len(children), nil
}

func (e *Engine) materializeGroup(ctx context.Context, jobRef, srcRef, dstRef store.DocRef, userType string) (int, error) {
	members, err := srcRef.Collection("members").Documents(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list source configuration members")
	}

	count := 0
	for _, member := range members {
		memberJobRef := jobRef.Collection("members").Doc(member.ID())
		err := memberJobRef.Set(ctx, withMonitoring(store.Fields{
			"src_member_config_ref": member.Ref().Path(),
		}), false)
		if err != nil {
			return 0, errors.Wrap(err, "failed to create member job document")
		}

		children, err := member.Ref().Collection("children").Documents(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "failed to list member configuration children")
		}
		for _, child := range children {
			err := memberJobRef.Collection("children").Doc(child.ID()).Set(ctx, withMonitoring(store.Fields{
				"src_child_config_ref": child.Ref().Path(),
			}), false)
			if err != nil {
				return 0, errors.Wrap(err, "failed to create member child job document")
			}
		}
		count += len(children)

		// Spec files for member sub-jobs live under <job>/<member>/ in
		// the config bucket.
		memberJobID := jobRef.ID() + "/" + member.ID()
		if err := e.specs.CreateConfigFile(ctx, memberJobID, member.Ref(), dstRef, userType); err != nil {
			return 0, errors.Wrapf(err, "failed to write rclone config file for member %s", member.ID())
		}
		if _, err := e.specs.CreateFilterFile(ctx, memberJobID, member.Ref()); err != nil {
			return 0, errors.Wrapf(err, "failed to write rclone filter file for member %s", member.ID())
		}
	}
	// Member jobs are sub-jobs too: the total counts both levels.
	count += len(members)
	return count, nil
}

func withMonitoring(data store.Fields) store.Fields {
	for k, v := range monitoringDefaults() {
		data[k] = v
	}
	return data
}

// List returns jobs (optionally filtered by user) with source and
// destination configurations resolved inline.
func (e *Engine) List(ctx context.Context, uid string) ([]store.Fields, error) {
	col := e.store.Collection(CollectionName)
	var snaps []store.Snapshot
	var err error
	if uid != "" {
		snaps, err = col.Where(ctx, "user_id", uid)
	} else {
		snaps, err = col.Documents(ctx)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}

	jobList := make([]store.Fields, 0, len(snaps))
	for _, snap := range snaps {
		data := snap.Data()
		data["job_id"] = snap.ID()

		srcConfig, err := e.resolveConfig(ctx, store.GetString(data, "src_config"), true)
		if err != nil {
			return nil, err
		}
		data["src_config"] = srcConfig

		dstConfig, err := e.resolveConfig(ctx, store.GetString(data, "dst_config"), false)
		if err != nil {
			return nil, err
		}
		data["dst_config"] = dstConfig

		jobList = append(jobList, data)
	}
	return jobList, nil
}

// resolveConfig dereferences a stored configuration path, optionally
// pulling in its flat children.
func (e *Engine) resolveConfig(ctx context.Context, path string, withChildren bool) (store.Fields, error) {
	if path == "" {
		return nil, nil
	}
	ref, err := e.store.DocFromPath(path)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid configuration reference %q", path)
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve configuration %q", path)
	}
	if !snap.Exists() {
		return nil, nil
	}
	data := snap.Data()
	if withChildren {
		childSnaps, err := ref.Collection("children").Documents(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve configuration children")
		}
		if len(childSnaps) > 0 {
			children := make([]store.Fields, 0, len(childSnaps))
			for _, child := range childSnaps {
				children = append(children, child.Data())
			}
			data["children"] = children
		}
	}
	return data, nil
}

// Start submits the job to its Cloud Workflow and records the console
// URL of the resulting execution on the job document.
func (e *Engine) Start(ctx context.Context, uid, jobID string) (*StartResult, error) {
	if uid == "" {
		return nil, errors.New("no User ID (uid) in request")
	}
	if jobID == "" {
		return nil, errors.New("no Job ID (job_id) in request")
	}

	jobRef := e.store.Collection(CollectionName).Doc(jobID)
	snap, err := jobRef.Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch job")
	}
	if !snap.Exists() {
		return nil, errors.Errorf("job %s does not exist", jobID)
	}
	data := snap.Data()

	srcType := store.GetString(data, "src_type")
	if srcType == "" {
		return nil, errors.Errorf("job %s has no source drive type, cannot select a workflow", jobID)
	}

	hasChildren, err := e.hasSubJobs(ctx, jobRef)
	if err != nil {
		return nil, err
	}

	args := &workflow.RuntimeArgs{
		Environment:  e.environment,
		UserID:       store.GetString(data, "user_id"),
		UserType:     store.GetString(data, "user_type"),
		JobID:        jobID,
		JobType:      store.GetString(data, "job_type"),
		DriveType:    srcType,
		SrcConfigRef: store.GetString(data, "src_config"),
		DstConfigRef: store.GetString(data, "dst_config"),
		HasChildren:  hasChildren,
		NotifyUsers:  store.GetStringSlice(data, "notify_users"),
	}

	workflowName := workflow.WorkflowName(srcType)
	execName, err := e.submitter.Submit(ctx, workflowName, args)
	if err != nil {
		return nil, errors.Wrap(err, "failed to submit workflow execution")
	}
	log.Infof("Job %s: started workflow execution %s", jobID, execName)

	url, err := workflow.ConsoleURL(execName, e.projectID)
	if err != nil {
		return nil, err
	}
	if err := jobRef.Update(ctx, store.Fields{"workflow_url": url}); err != nil {
		return nil, errors.Wrap(err, "failed to record workflow URL on job")
	}
	return &StartResult{JobID: jobID, WorkflowURL: url, Workflow: workflowName}, nil
}

// hasSubJobs reports whether the job fans out into member or child
// sub-jobs.
func (e *Engine) hasSubJobs(ctx context.Context, jobRef store.DocRef) (bool, error) {
	for _, name := range []string{"members", "children"} {
		refs, err := jobRef.Collection(name).DocumentRefs(ctx)
		if err != nil {
			return false, errors.Wrapf(err, "failed to list job %s", name)
		}
		if len(refs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Get fetches a single job document by id.
func (e *Engine) Get(ctx context.Context, jobID string) (store.Fields, error) {
	snap, err := e.store.Collection(CollectionName).Doc(jobID).Get(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch job")
	}
	if !snap.Exists() {
		return nil, errors.Errorf("job %s does not exist", jobID)
	}
	return snap.Data(), nil
}
