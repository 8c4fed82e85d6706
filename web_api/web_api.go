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

// Package web_api exposes the transfer service's HTTP surface.
//
// Every endpoint replies with HTTP 200 and a JSON body carrying a
// "success" flag; failures put an explanatory "message" next to
// success=false. Callers branch on the flag, not the status code.
package web_api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dtsplatform/dts/configs"
	"github.com/dtsplatform/dts/directory"
	"github.com/dtsplatform/dts/gdrive"
	"github.com/dtsplatform/dts/jobs"
	"github.com/dtsplatform/dts/metrics"
	"github.com/dtsplatform/dts/notify"
	"github.com/dtsplatform/dts/param"
)

// Server bundles the domain services behind the HTTP handlers.
type Server struct {
	configs  *configs.Builder
	jobs     *jobs.Engine
	drive    gdrive.Enumerator
	dir      directory.Resolver
	notifier notify.Notifier
}

func NewServer(cfgs *configs.Builder, engine *jobs.Engine, drive gdrive.Enumerator, dir directory.Resolver, notifier notify.Notifier) *Server {
	return &Server{
		configs:  cfgs,
		jobs:     engine,
		drive:    drive,
		dir:      dir,
		notifier: notifier,
	}
}

// RegisterRoutes attaches every API endpoint to the engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.Use(requestTimeout(param.Server_RequestTimeout.GetDuration()))

	engine.GET("/healthcheck", s.healthCheck)
	engine.POST("/configs/add", s.addConfig)
	engine.GET("/configs/list", s.listConfigs)
	engine.POST("/jobs/add", s.addJob)
	engine.GET("/jobs/list", s.listJobs)
	engine.POST("/jobs/start", s.startJob)
	engine.GET("/drive/list", s.listDrives)
	engine.POST("/drive/info", s.driveInfo)
	engine.POST("/drive/subfolders", s.driveSubfolders)
	engine.GET("/group/validate", s.validateGroup)
	engine.POST("/workflow/notify", s.workflowNotify)
}

// requestTimeout bounds every handler by the configured deadline. Drive
// enumeration of large trees is the long pole.
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if timeout <= 0 {
			ctx.Next()
			return
		}
		reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(reqCtx)
		ctx.Next()
	}
}

// fail replies success=false with a prefixed message, keeping the 200
// status contract.
func fail(ctx *gin.Context, endpoint, prefix string, err error) {
	log.Errorf("%s: %v", prefix, err)
	metrics.RequestErrors.WithLabelValues(endpoint).Inc()
	ctx.JSON(http.StatusOK, gin.H{
		"message": prefix + ": " + err.Error(),
		"success": false,
	})
}

func (s *Server) healthCheck(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "healthy", "success": true})
}

func (s *Server) addConfig(ctx *gin.Context) {
	req := configs.AddRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, "configs_add", "ADD CONFIG ERROR", err)
		return
	}
	result, err := s.configs.Add(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, "configs_add", "ADD CONFIG ERROR", err)
		return
	}
	metrics.ConfigsAdded.WithLabelValues(result.StorageType).Inc()
	resp := gin.H{
		"storage_type": result.StorageType,
		"config_id":    result.ConfigID,
		"created_time": result.CreatedTime,
		"success":      true,
	}
	if result.ChildrenCount != nil {
		resp["children_count"] = *result.ChildrenCount
	}
	ctx.JSON(http.StatusOK, resp)
}

func (s *Server) listConfigs(ctx *gin.Context) {
	configList, err := s.configs.List(ctx.Request.Context(), ctx.Query("uid"))
	if err != nil {
		fail(ctx, "configs_list", "LIST CONFIGS ERROR", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"configs": configList, "success": true})
}

func (s *Server) addJob(ctx *gin.Context) {
	req := jobs.AddRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, "jobs_add", "ADD JOB ERROR", err)
		return
	}
	result, err := s.jobs.Add(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, "jobs_add", "ADD JOB ERROR", err)
		return
	}
	metrics.JobsAdded.Inc()
	ctx.JSON(http.StatusOK, gin.H{
		"job_id":         result.JobID,
		"children_count": result.ChildrenCount,
		"success":        true,
	})
}

func (s *Server) listJobs(ctx *gin.Context) {
	jobList, err := s.jobs.List(ctx.Request.Context(), ctx.Query("uid"))
	if err != nil {
		fail(ctx, "jobs_list", "LIST JOBS ERROR", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"jobs": jobList, "success": true})
}

type startJobRequest struct {
	UID   string `json:"uid"`
	JobID string `json:"job_id"`
}

func (s *Server) startJob(ctx *gin.Context) {
	req := startJobRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, "jobs_start", "START JOB ERROR", err)
		return
	}
	result, err := s.jobs.Start(ctx.Request.Context(), req.UID, req.JobID)
	if err != nil {
		fail(ctx, "jobs_start", "START JOB ERROR", err)
		return
	}
	metrics.JobsStarted.WithLabelValues(result.Workflow).Inc()
	ctx.JSON(http.StatusOK, gin.H{
		"job_id":       result.JobID,
		"workflow_url": result.WorkflowURL,
		"success":      true,
	})
}

func (s *Server) listDrives(ctx *gin.Context) {
	drives, err := s.drive.ListSharedDrives(ctx.Request.Context())
	if err != nil {
		fail(ctx, "drives_list", "DRIVES LIST ERROR", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"shared_drives": drives, "success": true})
}

type driveInfoRequest struct {
	URL string `json:"url"`
}

func (s *Server) driveInfo(ctx *gin.Context) {
	req := driveInfoRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, "drive_info", "DRIVE INFO ERROR", err)
		return
	}
	folderID, err := gdrive.ParseFolderURL(req.URL)
	if err != nil {
		fail(ctx, "drive_info", "DRIVE INFO ERROR", err)
		return
	}
	info, err := s.drive.GetFolderInfo(ctx.Request.Context(), folderID, "")
	if err != nil {
		fail(ctx, "drive_info", "DRIVE INFO ERROR", err)
		return
	}

	resp := gin.H{"shared": info.SharedDriveID != "", "success": true}
	if info.SharedDriveID != "" {
		resp["shared_drive_id"] = info.SharedDriveID
		resp["shared_drive_name"] = info.SharedDriveName
		if info.RootFolderID != "" {
			resp["root_folder_id"] = info.RootFolderID
			resp["root_folder_name"] = info.RootFolderName
		}
	}
	ctx.JSON(http.StatusOK, resp)
}

type driveSubfoldersRequest struct {
	DriveType       string `json:"drive_type"`
	SharedDriveID   string `json:"shared_drive_id"`
	ImpersonateUser string `json:"impersonate_user"`
	URL             string `json:"url"`
	Recursive       *bool  `json:"recursive"`
}

func (s *Server) driveSubfolders(ctx *gin.Context) {
	req := driveSubfoldersRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, "drive_subfolders", "LIST SUBFOLDERS ERROR", err)
		return
	}

	switch req.DriveType {
	case gdrive.DriveTypeShared:
		if req.URL == "" {
			fail(ctx, "drive_subfolders", "LIST SUBFOLDERS ERROR", errors.New("no folder URL (url) in request for a Shared Drive"))
			return
		}
	case gdrive.DriveTypeMyDrive:
		if req.ImpersonateUser == "" {
			fail(ctx, "drive_subfolders", "LIST SUBFOLDERS ERROR", errors.New("no user to impersonate (impersonate_user) in request for a My Drive"))
			return
		}
	}

	driveID := req.SharedDriveID
	rootFolderID := ""
	if req.URL != "" {
		folderID, err := gdrive.ParseFolderURL(req.URL)
		if err != nil {
			fail(ctx, "drive_subfolders", "LIST SUBFOLDERS ERROR", err)
			return
		}
		info, err := s.drive.GetFolderInfo(ctx.Request.Context(), folderID, req.ImpersonateUser)
		if err != nil {
			fail(ctx, "drive_subfolders", "LIST SUBFOLDERS ERROR", err)
			return
		}
		rootFolderID = info.RootFolderID
		// The resolved folder carries the Shared Drive it lives in.
		if info.SharedDriveID != "" {
			driveID = info.SharedDriveID
		}
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}
	list, err := s.drive.ListSubfolders(ctx.Request.Context(), req.DriveType, driveID, req.ImpersonateUser, rootFolderID, recursive)
	if err != nil {
		fail(ctx, "drive_subfolders", "LIST SUBFOLDERS ERROR", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"parent_folder": list.Parent,
		"subfolders":    list.Subfolders,
		"success":       true,
	})
}

func (s *Server) validateGroup(ctx *gin.Context) {
	email := ctx.Query("email")
	if email == "" {
		fail(ctx, "group_validate", "VALIDATE GROUP ERROR", errors.New("no Group email (email) in request"))
		return
	}
	group, err := s.dir.ValidateGroup(ctx.Request.Context(), email)
	if err != nil {
		// Definitive verdicts about the group are successful answers,
		// not transport failures.
		switch {
		case errors.Is(err, directory.ErrGroupNotValid):
			ctx.JSON(http.StatusOK, gin.H{"error": "GROUP_NOT_VALID", "success": true})
		case errors.Is(err, directory.ErrGroupNoMembers):
			ctx.JSON(http.StatusOK, gin.H{"error": "GROUP_NO_MEMBERS", "success": true})
		default:
			fail(ctx, "group_validate", "VALIDATE GROUP ERROR", err)
		}
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"group_id":      group.GroupID,
		"group_email":   group.GroupEmail,
		"group_members": group.Members,
		"success":       true,
	})
}

type workflowNotifyRequest struct {
	JobID       string   `json:"job_id"`
	Status      string   `json:"status"`
	URL         string   `json:"url"`
	NotifyUsers []string `json:"notify_users"`
}

func (s *Server) workflowNotify(ctx *gin.Context) {
	req := workflowNotifyRequest{}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		fail(ctx, "workflow_notify", "SEND NOTIFICATION ERROR", err)
		return
	}
	job, err := s.jobs.Get(ctx.Request.Context(), req.JobID)
	if err != nil {
		fail(ctx, "workflow_notify", "SEND NOTIFICATION ERROR", err)
		return
	}
	sent, err := s.notifier.SendJobStatus(ctx.Request.Context(), req.JobID, req.Status, req.URL, job, req.NotifyUsers)
	if err != nil {
		fail(ctx, "workflow_notify", "SEND NOTIFICATION ERROR", err)
		return
	}
	metrics.NotificationsSent.Add(float64(len(sent)))
	ctx.JSON(http.StatusOK, gin.H{"messages": sent, "success": true})
}
