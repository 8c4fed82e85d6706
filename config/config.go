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

// Package config initializes the process-wide viper configuration and
// logging for the Drive Transfer Service.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dtsplatform/dts/param"
)

// The key used to store the errgroup that owns the server's background
// goroutines inside a context.Context.
type ContextKey string

const EgrpKey ContextKey = "egrp"

// InitConfig sets up viper's environment bindings, config file search
// paths, and defaults. It must run before any param getter is consulted.
// An explicit cfgFile overrides the search paths.
func InitConfig(cfgFile string) error {
	viper.SetEnvPrefix("dts")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dts")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("/etc/dts")
		viper.AddConfigPath("$HOME/.dts")
		viper.AddConfigPath(".")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "failed to read config file")
		}
		// Running purely off environment variables is supported.
	}

	return initLogging()
}

func setDefaults() {
	viper.SetDefault(param.Logging_Level.GetName(), "info")
	viper.SetDefault(param.Server_Address.GetName(), "0.0.0.0")
	viper.SetDefault(param.Server_Port.GetName(), 8080)
	viper.SetDefault(param.Server_RequestTimeout.GetName(), 5*time.Minute)
	viper.SetDefault(param.Gcp_Region.GetName(), "us-central1")
	viper.SetDefault(param.Group_UserLimit.GetName(), 50)
	viper.SetDefault(param.Directory_CacheLifetime.GetName(), 15*time.Minute)
}

func initLogging() error {
	levelStr := param.Logging_Level.GetString()
	level, err := log.ParseLevel(levelStr)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", levelStr)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})
	return nil
}

// Validate checks that the parameters without sensible defaults have
// been provided. Called at server launch, not at config read time, so
// client commands that never touch GCP do not require them.
func Validate() error {
	required := []param.StringParam{
		param.Gcp_ProjectId,
		param.Gcp_Environment,
		param.Gcp_ConfigBucket,
	}
	for _, p := range required {
		if p.GetString() == "" {
			return errors.Errorf("required configuration %s is not set", p.GetName())
		}
	}
	return nil
}
