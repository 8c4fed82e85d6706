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

package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/dtsplatform/dts/config"
	"github.com/dtsplatform/dts/param"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "dts",
		Short: "Coordinate bulk Google Drive to Cloud Storage transfers",
		Long: `The dts service materializes transfer configurations from Google
Drive scopes and Cloud Storage buckets, fans them out into rclone jobs,
and hands the jobs to Cloud Workflows for execution.`,
	}
)

func Execute() error {
	egrp, egrpCtx := errgroup.WithContext(context.Background())
	ctx := context.WithValue(egrpCtx, config.EgrpKey, egrp)
	exeErr := rootCmd.ExecuteContext(ctx)
	if exeErr != nil {
		log.Errorln("Fatal error occurred at the start of the program:", exeErr)
	}
	// Wait until all goroutines in the errgroup finish their cleanup.
	egrpErr := egrp.Wait()
	if egrpErr != nil && exeErr == nil {
		log.Errorln("Fatal error occurred during shutdown:", egrpErr)
		return egrpErr
	}
	return exeErr
}

func init() {
	cobra.OnInitialize(func() {
		if err := config.InitConfig(cfgFile); err != nil {
			log.Errorln("Failed to initialize the configuration:", err)
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/dts/dts.yaml)")
	rootCmd.PersistentFlags().StringP("log", "l", "", "log level (debug, info, warn, error)")
	if err := viper.BindPFlag(param.Logging_Level.GetName(), rootCmd.PersistentFlags().Lookup("log")); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(serveCmd)
}
