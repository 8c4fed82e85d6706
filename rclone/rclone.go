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

// Package rclone generates the per-job transfer-spec artifacts consumed
// by the out-of-process rclone workers: a connection-config file with
// one stanza per endpoint, and an optional path-filter file limiting
// the transfer to the source's discovered subfolders.
package rclone

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dtsplatform/dts/store"
)

const (
	// ConfigObjectName is the connection-config artifact, stored under
	// "<job_id>/rclone.conf".
	ConfigObjectName = "rclone.conf"
	// FilterObjectName is the path-filter artifact, stored under
	// "<job_id>/subfolders.txt". It is omitted entirely for sources
	// without children; consumers treat its absence as "no filtering".
	FilterObjectName = "subfolders.txt"
)

// SpecWriter is the artifact-generation interface the job fan-out
// engine depends on.
type SpecWriter interface {
	// CreateConfigFile renders and uploads the connection config for a
	// job. srcRef and dstRef locate the endpoint Configurations.
	CreateConfigFile(ctx context.Context, jobID string, srcRef, dstRef store.DocRef, userType string) error
	// CreateFilterFile renders and uploads the path-filter file. It
	// reports false (with no error) when the source has no children and
	// nothing was uploaded.
	CreateFilterFile(ctx context.Context, jobID string, srcRef store.DocRef) (bool, error)
}

// Writer renders artifacts and uploads them to a blob bucket.
type Writer struct {
	blobs             BlobStore
	oauthClientID     string
	oauthClientSecret string
}

func NewWriter(blobs BlobStore, oauthClientID, oauthClientSecret string) *Writer {
	return &Writer{
		blobs:             blobs,
		oauthClientID:     oauthClientID,
		oauthClientSecret: oauthClientSecret,
	}
}

func (w *Writer) CreateConfigFile(ctx context.Context, jobID string, srcRef, dstRef store.DocRef, userType string) error {
	src, err := srcRef.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch source config")
	}
	dst, err := dstRef.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to fetch destination config")
	}
	if !src.Exists() || !dst.Exists() {
		return errors.New("failed to fetch source/destination config: either the config ID is invalid or the config does not exist")
	}

	var b strings.Builder
	w.writeStanza(&b, src.Data(), userType)
	b.WriteString("\n")
	w.writeStanza(&b, dst.Data(), userType)

	objectPath := jobID + "/" + ConfigObjectName
	if err := w.blobs.Upload(ctx, objectPath, []byte(b.String())); err != nil {
		return errors.Wrap(err, "failed to upload rclone config")
	}
	log.Debugf("Uploaded %s", objectPath)
	return nil
}

// writeStanza renders one endpoint section: the storage type header,
// injected OAuth client credentials, the service-account key path
// templated by user type, and the endpoint's connection parameters.
func (w *Writer) writeStanza(b *strings.Builder, data store.Fields, userType string) {
	storageType := store.GetString(data, "storage_type")
	fmt.Fprintf(b, "[%s]\n", storageType)
	fmt.Fprintf(b, "type = %s\n", storageType)
	fmt.Fprintf(b, "client_id = %s\n", w.oauthClientID)
	fmt.Fprintf(b, "client_secret = %s\n", w.oauthClientSecret)
	fmt.Fprintf(b, "service_account_file = /var/secrets/sa-rclone-%s-transfers-key.json\n", userType)

	params := store.GetMap(data, "config")
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := params[k]
		if v == nil {
			v = ""
		}
		fmt.Fprintf(b, "%s = %v\n", k, v)
	}
}

func (w *Writer) CreateFilterFile(ctx context.Context, jobID string, srcRef store.DocRef) (bool, error) {
	children, err := srcRef.Collection("children").Documents(ctx)
	if err != nil {
		return false, errors.Wrap(err, "failed to list source config children")
	}

	var filters []string
	for _, child := range children {
		folderName := store.GetString(store.GetMap(child.Data(), "command"), "folder_name")
		filters = append(filters, folderName+"/**")
	}
	if len(filters) == 0 {
		log.Debugf("Source of job %s has no children; skipping %s", jobID, FilterObjectName)
		return false, nil
	}

	content := strings.Join(filters, "\n") + "\n"
	objectPath := jobID + "/" + FilterObjectName
	if err := w.blobs.Upload(ctx, objectPath, []byte(content)); err != nil {
		return false, errors.Wrap(err, "failed to upload subfolder filter file")
	}
	log.Debugf("Uploaded %s", objectPath)
	return true, nil
}
