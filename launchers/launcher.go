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

// Package launchers wires the concrete GCP clients into the domain
// services and runs the HTTP server.
package launchers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dtsplatform/dts/config"
	"github.com/dtsplatform/dts/configs"
	"github.com/dtsplatform/dts/directory"
	"github.com/dtsplatform/dts/gdrive"
	"github.com/dtsplatform/dts/jobs"
	"github.com/dtsplatform/dts/notify"
	"github.com/dtsplatform/dts/param"
	"github.com/dtsplatform/dts/rclone"
	"github.com/dtsplatform/dts/store"
	"github.com/dtsplatform/dts/web_api"
	"github.com/dtsplatform/dts/workflow"
)

// LaunchServer builds every dependency explicitly, registers the API,
// and serves until the context is canceled. Cleanup of the underlying
// GCP clients runs on the context's error group.
func LaunchServer(ctx context.Context) error {
	egrp, ok := ctx.Value(config.EgrpKey).(*errgroup.Group)
	if !ok {
		egrp = &errgroup.Group{}
	}

	if err := config.Validate(); err != nil {
		return err
	}

	projectID := param.Gcp_ProjectId.GetString()
	environment := param.Gcp_Environment.GetString()

	docStore, err := store.NewFirestoreStore(ctx, projectID, environment)
	if err != nil {
		return errors.Wrap(err, "failed to connect to the document store")
	}
	egrp.Go(func() error {
		<-ctx.Done()
		return docStore.Close()
	})

	blobs, closeBlobs, err := rclone.NewGCSBlobStore(ctx, param.Gcp_ConfigBucket.GetString())
	if err != nil {
		return errors.Wrap(err, "failed to connect to the config bucket")
	}
	egrp.Go(func() error {
		<-ctx.Done()
		return closeBlobs()
	})

	submitter, err := workflow.NewClient(ctx, projectID, param.Gcp_Region.GetString())
	if err != nil {
		return errors.Wrap(err, "failed to create the workflow executions client")
	}
	egrp.Go(func() error {
		<-ctx.Done()
		return submitter.Close()
	})

	adminSA := param.Gcp_RcloneAdminSa.GetString()
	drive := gdrive.NewClient(adminSA)
	dir := directory.NewClient(adminSA, param.Directory_AdminSubject.GetString(), param.Directory_CacheLifetime.GetDuration())
	notifier := notify.NewGmailNotifier(adminSA, param.Notify_Sender.GetString())

	organizerPrincipals := []string{}
	for _, sa := range []string{param.Gcp_CloudRunSa.GetString(), adminSA} {
		if sa != "" {
			organizerPrincipals = append(organizerPrincipals, sa)
		}
	}

	builder := configs.NewBuilder(docStore, drive, dir, organizerPrincipals, param.Group_UserLimit.GetInt())
	specs := rclone.NewWriter(blobs, param.Gcp_OauthClientId.GetString(), param.Gcp_OauthClientSecret.GetString())
	engine := jobs.NewEngine(docStore, specs, submitter, projectID, environment)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	web_api.NewServer(builder, engine, drive, dir, notifier).RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", param.Server_Address.GetString(), param.Server_Port.GetInt())
	server := &http.Server{Addr: addr, Handler: router}

	egrp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Infoln("Serving the transfer API on", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "failure when running the API server")
	}
	return nil
}
