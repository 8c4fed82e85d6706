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
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dtsplatform/dts/launchers"
	"github.com/dtsplatform/dts/param"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transfer coordination API server",
	RunE:  serveMain,
}

func init() {
	serveCmd.Flags().StringP("address", "a", "", "address the web server listens on")
	serveCmd.Flags().Uint16P("port", "p", 0, "port the web server listens on")
	if err := viper.BindPFlag(param.Server_Address.GetName(), serveCmd.Flags().Lookup("address")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag(param.Server_Port.GetName(), serveCmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
}

func serveMain(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Infoln("Received signal", sig, "- shutting down")
		cancel()
	}()

	return launchers.LaunchServer(ctx)
}
