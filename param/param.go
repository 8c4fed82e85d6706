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

// Package param provides typed accessors over the viper configuration keys
// recognized by the Drive Transfer Service. Every key readable from the
// config file is also readable from the environment with the DTS_ prefix
// (dots replaced by underscores, e.g. DTS_GCP_PROJECTID).
package param

import (
	"time"

	"github.com/spf13/viper"
)

type StringParam struct {
	name string
}

func (sP StringParam) GetName() string {
	return sP.name
}

func (sP StringParam) GetString() string {
	return viper.GetString(sP.name)
}

type StringSliceParam struct {
	name string
}

func (slP StringSliceParam) GetName() string {
	return slP.name
}

func (slP StringSliceParam) GetStringSlice() []string {
	return viper.GetStringSlice(slP.name)
}

type IntParam struct {
	name string
}

func (iP IntParam) GetName() string {
	return iP.name
}

func (iP IntParam) GetInt() int {
	return viper.GetInt(iP.name)
}

type BoolParam struct {
	name string
}

func (bP BoolParam) GetName() string {
	return bP.name
}

func (bP BoolParam) GetBool() bool {
	return viper.GetBool(bP.name)
}

type DurationParam struct {
	name string
}

func (dP DurationParam) GetName() string {
	return dP.name
}

func (dP DurationParam) GetDuration() time.Duration {
	return viper.GetDuration(dP.name)
}

var (
	Logging_Level = StringParam{"Logging.Level"}

	Server_Address        = StringParam{"Server.Address"}
	Server_Port           = IntParam{"Server.Port"}
	Server_RequestTimeout = DurationParam{"Server.RequestTimeout"}

	Gcp_ProjectId         = StringParam{"Gcp.ProjectId"}
	Gcp_Environment       = StringParam{"Gcp.Environment"}
	Gcp_Region            = StringParam{"Gcp.Region"}
	Gcp_CloudRunSa        = StringParam{"Gcp.CloudRunSa"}
	Gcp_RcloneAdminSa     = StringParam{"Gcp.RcloneAdminSa"}
	Gcp_ConfigBucket      = StringParam{"Gcp.ConfigBucket"}
	Gcp_OauthClientId     = StringParam{"Gcp.OauthClientId"}
	Gcp_OauthClientSecret = StringParam{"Gcp.OauthClientSecret"}

	Group_UserLimit = IntParam{"Group.UserLimit"}

	Notify_Sender = StringParam{"Notify.Sender"}

	Directory_CacheLifetime = DurationParam{"Directory.CacheLifetime"}
	Directory_AdminSubject  = StringParam{"Directory.AdminSubject"}
)
