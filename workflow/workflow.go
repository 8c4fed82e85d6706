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

// Package workflow submits materialized jobs to Cloud Workflows for
// execution by the per-sub-kind rclone job workflows.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RuntimeArgs is the argument record handed to a workflow execution.
type RuntimeArgs struct {
	Environment  string   `json:"environment"`
	UserID       string   `json:"user_id"`
	UserType     string   `json:"user_type"`
	JobID        string   `json:"job_id"`
	JobType      string   `json:"job_type"`
	DriveType    string   `json:"drive_type"`
	SrcConfigRef string   `json:"src_config_ref"`
	DstConfigRef string   `json:"dst_config_ref"`
	HasChildren  bool     `json:"has_children"`
	NotifyUsers  []string `json:"notify_users"`
}

// Submitter starts one workflow execution and returns its fully
// qualified execution resource name.
type Submitter interface {
	Submit(ctx context.Context, workflowName string, args *RuntimeArgs) (string, error)
}

// WorkflowName derives the workflow targeted for a source sub-kind,
// e.g. "shared-rclone-job-workflow".
func WorkflowName(srcType string) string {
	return srcType + "-rclone-job-workflow"
}

// Client submits executions through the Cloud Workflows Executions API.
type Client struct {
	exec      *executions.Client
	projectID string
	region    string
}

func NewClient(ctx context.Context, projectID, region string) (*Client, error) {
	exec, err := executions.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Workflows Executions client")
	}
	return &Client{exec: exec, projectID: projectID, region: region}, nil
}

func (c *Client) Submit(ctx context.Context, workflowName string, args *RuntimeArgs) (string, error) {
	argument, err := json.Marshal(args)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode workflow runtime arguments")
	}

	parent := fmt.Sprintf("projects/%s/locations/%s/workflows/%s", c.projectID, c.region, workflowName)
	resp, err := c.exec.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: parent,
		Execution: &executionspb.Execution{
			Argument: string(argument),
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to create execution of workflow %s", workflowName)
	}
	log.Infof("Created execution: %s", resp.GetName())
	return resp.GetName(), nil
}

func (c *Client) Close() error {
	return c.exec.Close()
}

// ConsoleURL converts an execution resource name
// (projects/P/locations/L/workflows/W/executions/E) into the Cloud
// Console summary page for that execution.
func ConsoleURL(executionName, projectID string) (string, error) {
	parts := strings.Split(executionName, "/")
	if len(parts) < 8 {
		return "", errors.Errorf("unexpected execution name format: %s", executionName)
	}
	location := parts[3]
	workflowName := parts[5]
	execution := parts[7]
	return fmt.Sprintf(
		"https://console.cloud.google.com/workflows/workflow/%s/%s/execution/%s/summary?project=%s",
		location, workflowName, execution, projectID,
	), nil
}
