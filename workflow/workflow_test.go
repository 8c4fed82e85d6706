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

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowNameBySourceKind(t *testing.T) {
	assert.Equal(t, "shared-rclone-job-workflow", WorkflowName("shared"))
	assert.Equal(t, "mydrive-rclone-job-workflow", WorkflowName("mydrive"))
	assert.Equal(t, "group-rclone-job-workflow", WorkflowName("group"))
}

func TestConsoleURL(t *testing.T) {
	name := "projects/proj1/locations/us-central1/workflows/shared-rclone-job-workflow/executions/abc123"
	url, err := ConsoleURL(name, "proj1")
	require.NoError(t, err)
	assert.Equal(t,
		"https://console.cloud.google.com/workflows/workflow/us-central1/shared-rclone-job-workflow/execution/abc123/summary?project=proj1",
		url)
}

func TestConsoleURLRejectsMalformedName(t *testing.T) {
	_, err := ConsoleURL("not/a/resource", "proj1")
	assert.Error(t, err)
}
