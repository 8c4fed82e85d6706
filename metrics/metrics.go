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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConfigsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dts_configs_added_total",
		Help: "Number of transfer configurations created or merged, by storage type.",
	}, []string{"storage_type"})

	JobsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dts_jobs_added_total",
		Help: "Number of transfer jobs materialized.",
	})

	JobsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dts_jobs_started_total",
		Help: "Number of workflow executions submitted, by workflow.",
	}, []string{"workflow"})

	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dts_notifications_sent_total",
		Help: "Number of job status notification emails delivered.",
	})

	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dts_request_errors_total",
		Help: "Number of API requests that returned an error, by endpoint.",
	}, []string{"endpoint"})
)
