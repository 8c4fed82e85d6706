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

// Package directory validates users and groups against the Workspace
// directory and expands groups into their member lists.
package directory

import (
	"context"
	"net/http"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
)

// MemberTypeUser marks directory group members that are plain users.
// Nested groups and service identities carry other types and are
// skipped during group expansion.
const MemberTypeUser = "USER"

var (
	// ErrUserNotFound signals that an email address does not belong to
	// an active member of the organization.
	ErrUserNotFound = errors.New("user is not a member of this organization")
	// ErrGroupNotValid signals that a group id or address could not be
	// resolved at all.
	ErrGroupNotValid = errors.New("group is not a valid group in this organization")
	// ErrGroupNoMembers signals a resolvable group with an empty member
	// list, which callers must treat distinctly from an invalid group.
	ErrGroupNoMembers = errors.New("group does not contain any members")
)

type Member struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Type  string `json:"type"`
}

type Group struct {
	GroupID    string   `json:"group_id"`
	GroupEmail string   `json:"group_email"`
	Members    []Member `json:"group_members"`
}

// Resolver is the identity lookup interface consumed by the
// configuration builder and the API handlers.
type Resolver interface {
	// ValidateUser returns the directory id for an organization member,
	// or ErrUserNotFound.
	ValidateUser(ctx context.Context, email string) (string, error)
	// ValidateGroup resolves a group and its member list; it fails with
	// ErrGroupNotValid or ErrGroupNoMembers.
	ValidateGroup(ctx context.Context, groupEmail string) (*Group, error)
}

// Client implements Resolver against the Admin SDK Directory API.
// Successful user validations are cached; group membership is always
// re-read since it drives destructive configuration rebuilds.
type Client struct {
	delegateSA   string
	adminSubject string
	userCache    *ttlcache.Cache[string, string]
}

func NewClient(delegateServiceAccount, adminSubject string, cacheLifetime time.Duration) *Client {
	return &Client{
		delegateSA:   delegateServiceAccount,
		adminSubject: adminSubject,
		userCache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cacheLifetime),
		),
	}
}

func (c *Client) service(ctx context.Context) (*admin.Service, error) {
	scopes := []string{
		admin.AdminDirectoryUserReadonlyScope,
		admin.AdminDirectoryGroupReadonlyScope,
	}
	if c.adminSubject == "" || c.delegateSA == "" {
		svc, err := admin.NewService(ctx, option.WithScopes(scopes...))
		return svc, errors.Wrap(err, "failed to build Directory service")
	}
	ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
		TargetPrincipal: c.delegateSA,
		Scopes:          scopes,
		Subject:         c.adminSubject,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to impersonate %s as %s", c.delegateSA, c.adminSubject)
	}
	svc, err := admin.NewService(ctx, option.WithTokenSource(ts))
	return svc, errors.Wrap(err, "failed to build delegated Directory service")
}

func (c *Client) ValidateUser(ctx context.Context, email string) (string, error) {
	if item := c.userCache.Get(email); item != nil {
		return item.Value(), nil
	}

	svc, err := c.service(ctx)
	if err != nil {
		return "", err
	}
	user, err := svc.Users.Get(email).Projection("basic").Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return "", ErrUserNotFound
		}
		return "", errors.Wrapf(err, "failed to look up user %s", email)
	}
	if user.Id == "" {
		return "", ErrUserNotFound
	}

	c.userCache.Set(email, user.Id, ttlcache.DefaultTTL)
	return user.Id, nil
}

func (c *Client) ValidateGroup(ctx context.Context, groupEmail string) (*Group, error) {
	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	group, err := svc.Groups.Get(groupEmail).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, ErrGroupNotValid
		}
		return nil, errors.Wrapf(err, "failed to look up group %s", groupEmail)
	}
	if group.Id == "" {
		return nil, ErrGroupNotValid
	}

	result := &Group{GroupID: group.Id, GroupEmail: groupEmail}
	err = svc.Members.List(groupEmail).Pages(ctx, func(page *admin.Members) error {
		for _, m := range page.Members {
			result.Members = append(result.Members, Member{ID: m.Id, Email: m.Email, Type: m.Type})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list members of group %s", groupEmail)
	}
	if len(result.Members) == 0 {
		return nil, ErrGroupNoMembers
	}

	log.Debugf("Group %s resolved with %d members", groupEmail, len(result.Members))
	return result, nil
}
