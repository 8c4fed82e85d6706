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

// Package notify sends job status emails through the Gmail API using a
// delegated sender address.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"mime/multipart"
	"net/textproto"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"

	"github.com/dtsplatform/dts/store"
)

// SentMessage reports one delivered notification.
type SentMessage struct {
	User      string `json:"user"`
	MessageID string `json:"message_id"`
}

// Notifier delivers job status notifications.
type Notifier interface {
	SendJobStatus(ctx context.Context, jobID, status, workflowURL string, job store.Fields, notifyUsers []string) ([]SentMessage, error)
}

// GmailNotifier sends mail as a fixed Workspace sender through
// domain-wide delegation.
type GmailNotifier struct {
	delegateSA string
	sender     string
}

func NewGmailNotifier(delegateSA, sender string) *GmailNotifier {
	return &GmailNotifier{delegateSA: delegateSA, sender: sender}
}

func (n *GmailNotifier) service(ctx context.Context) (*gmail.Service, error) {
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: n.delegateSA,
		Scopes:          []string{gmail.GmailSendScope},
		Subject:         n.sender,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to impersonate sender %s", n.sender)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Gmail service")
	}
	return svc, nil
}

// SendJobStatus mails every notify user a plain-text plus HTML status
// message for the job. Per-recipient failures abort the whole send.
func (n *GmailNotifier) SendJobStatus(ctx context.Context, jobID, status, workflowURL string, job store.Fields, notifyUsers []string) ([]SentMessage, error) {
	svc, err := n.service(ctx)
	if err != nil {
		return nil, err
	}

	sent := make([]SentMessage, 0, len(notifyUsers))
	for _, user := range notifyUsers {
		raw, err := composeMessage(n.sender, user, jobID, status, workflowURL, job)
		if err != nil {
			return nil, err
		}
		msg, err := svc.Users.Messages.Send(n.sender, &gmail.Message{Raw: raw}).Context(ctx).Do()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to send notification to %s", user)
		}
		log.Infof("Job %s: sent %s notification to %s (message %s)", jobID, status, user, msg.Id)
		sent = append(sent, SentMessage{User: user, MessageID: msg.Id})
	}
	return sent, nil
}

// composeMessage builds the base64url-encoded RFC 2822 message the
// Gmail API expects: a multipart/alternative body with text and HTML
// renderings.
func composeMessage(sender, recipient, jobID, status, workflowURL string, job store.Fields) (string, error) {
	srcName := store.GetString(job, "src_name")
	dstName := store.GetString(job, "dst_name")
	jobType := store.GetString(job, "job_type")

	text := fmt.Sprintf(
		"The %s job %s is now %s.\n\nSource: %s\nDestination: %s\n",
		jobType, jobID, status, srcName, dstName)
	htmlBody := fmt.Sprintf(
		"<html><body><p>The %s job <b>%s</b> is now <b>%s</b>.</p>"+
			"<p>Source: %s<br>Destination: %s</p>",
		html.EscapeString(jobType), html.EscapeString(jobID), html.EscapeString(status),
		html.EscapeString(srcName), html.EscapeString(dstName))
	if workflowURL != "" {
		text += fmt.Sprintf("\nWorkflow execution: %s\n", workflowURL)
		htmlBody += fmt.Sprintf(`<p><a href="%s">View the workflow execution</a></p>`, workflowURL)
	}
	htmlBody += "</body></html>"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", sender)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	fmt.Fprintf(&buf, "Subject: [%s] Rclone Job ID: %s\r\n", status, jobID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())

	textPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {`text/plain; charset="UTF-8"`}})
	if err != nil {
		return "", errors.Wrap(err, "failed to compose text part")
	}
	if _, err := textPart.Write([]byte(text)); err != nil {
		return "", errors.Wrap(err, "failed to compose text part")
	}
	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {`text/html; charset="UTF-8"`}})
	if err != nil {
		return "", errors.Wrap(err, "failed to compose html part")
	}
	if _, err := htmlPart.Write([]byte(htmlBody)); err != nil {
		return "", errors.Wrap(err, "failed to compose html part")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "failed to finalize message")
	}

	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}
