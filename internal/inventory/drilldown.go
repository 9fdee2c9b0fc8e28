// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsec/vulnsync/internal/config"
	"github.com/kestrelsec/vulnsync/internal/logging"
	"github.com/kestrelsec/vulnsync/internal/metrics"
)

// alertsQuery covers all three pagination axes. Follow-up requests scope the
// outer axes with the query filters and advance exactly one cursor.
const alertsQuery = `
query teamAlerts($org: String!, $teamQuery: String, $repoQuery: String, $teamPageSize: Int!, $repoPageSize: Int!, $alertPageSize: Int!, $teamCursor: String, $repoCursor: String, $alertCursor: String) {
  organization(login: $org) {
    teams(first: $teamPageSize, after: $teamCursor, query: $teamQuery) {
      pageInfo { hasNextPage endCursor }
      nodes {
        slug
        name
        repositories(first: $repoPageSize, after: $repoCursor, query: $repoQuery) {
          pageInfo { hasNextPage endCursor }
          nodes {
            name
            vulnerabilityAlerts(first: $alertPageSize, after: $alertCursor) {
              pageInfo { hasNextPage endCursor }
              nodes {
                id
                state
                createdAt
                securityVulnerability {
                  severity
                  package { name }
                }
              }
            }
          }
        }
      }
    }
  }
}`

// axis names the pagination level a task advances.
type axis string

const (
	axisTeam  axis = "team"
	axisRepo  axis = "repo"
	axisAlert axis = "alert"
)

// task is one pending request: advance the named axis from cursor, with all
// outer identities held fixed by filter.
type task struct {
	axis     axis
	teamSlug string
	repoName string
	cursor   *string
}

// Engine materializes the complete team / repository / alert hierarchy from
// an API that advances only one pagination axis per request and returns at
// most the first page of inner axes.
//
// The engine runs an explicit work queue of (axis, scope, cursor) tasks
// instead of recursing, so termination and merge behavior are testable
// independent of transport. Requests are issued strictly sequentially; each
// call owns its own state, so concurrent calls are independent.
type Engine struct {
	client        GraphQLClientInterface
	org           string
	teamPageSize  int
	repoPageSize  int
	alertPageSize int
}

// NewEngine creates a drill-down engine.
func NewEngine(cfg *config.GitHubConfig, client GraphQLClientInterface) *Engine {
	return &Engine{
		client:        client,
		org:           cfg.Org,
		teamPageSize:  cfg.TeamPageSize,
		repoPageSize:  cfg.RepoPageSize,
		alertPageSize: cfg.AlertPageSize,
	}
}

// FetchAll drills every axis to exhaustion and returns the merged hierarchy.
// Any remote error aborts the whole call; no partial result is returned.
func (e *Engine) FetchAll(ctx context.Context) (*MergedResult, error) {
	start := time.Now()
	builder := newResultBuilder()

	queue := []task{{axis: axisTeam}}
	requests := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := queue[0]
		queue = queue[1:]

		page, err := e.fetch(ctx, t)
		if err != nil {
			return nil, err
		}
		requests++
		metrics.DrilldownRequests.WithLabelValues(string(t.axis)).Inc()

		queue = append(queue, builder.merge(t, page)...)
	}

	result := builder.finalize()
	metrics.DrilldownDuration.Observe(time.Since(start).Seconds())
	logging.Ctx(ctx).Debug().
		Int("requests", requests).
		Int("teams", len(result.Teams)).
		Msg("Drill-down complete")
	return result, nil
}

// fetch issues the request for one task.
func (e *Engine) fetch(ctx context.Context, t task) (*teamConnection, error) {
	variables := map[string]any{
		"org":           e.org,
		"teamPageSize":  e.teamPageSize,
		"repoPageSize":  e.repoPageSize,
		"alertPageSize": e.alertPageSize,
	}

	switch t.axis {
	case axisTeam:
		if t.cursor != nil {
			variables["teamCursor"] = *t.cursor
		}
	case axisRepo:
		variables["teamQuery"] = t.teamSlug
		if t.cursor != nil {
			variables["repoCursor"] = *t.cursor
		}
	case axisAlert:
		variables["teamQuery"] = t.teamSlug
		variables["repoQuery"] = t.repoName
		if t.cursor != nil {
			variables["alertCursor"] = *t.cursor
		}
	}

	var data alertsQueryData
	if err := e.client.Query(ctx, alertsQuery, variables, &data); err != nil {
		return nil, err
	}
	if data.Organization == nil {
		return nil, fmt.Errorf("graphql response missing required field %q", "organization")
	}
	return &data.Organization.Teams, nil
}

// Accumulator nodes use pointers so merges can extend children in place
// while pages arrive out of tree order.

type teamAcc struct {
	slug    string
	name    string
	repos   []*repoAcc
	repoIdx map[string]*repoAcc
}

type repoAcc struct {
	name   string
	alerts []Alert
	seen   map[string]struct{}
}

type resultBuilder struct {
	teams   []*teamAcc
	teamIdx map[string]*teamAcc
}

func newResultBuilder() *resultBuilder {
	return &resultBuilder{teamIdx: make(map[string]*teamAcc)}
}

// merge folds one response page into the accumulated hierarchy and returns
// the follow-up tasks it implies. Nodes are keyed by identity (team slug,
// repository name, alert ID): a node seen again is extended, never
// duplicated, and children append in fetch order.
func (b *resultBuilder) merge(t task, page *teamConnection) []task {
	var followups []task

	for _, tn := range page.Nodes {
		team := b.team(tn.Slug, tn.Name)

		for _, rn := range tn.Repositories.Nodes {
			repo := team.repo(rn.Name)
			for _, an := range rn.Alerts.Nodes {
				repo.addAlert(an.toAlert())
			}
			if rn.Alerts.PageInfo.HasNextPage {
				followups = append(followups, task{
					axis:     axisAlert,
					teamSlug: tn.Slug,
					repoName: rn.Name,
					cursor:   rn.Alerts.PageInfo.EndCursor,
				})
			}
		}

		// A scoped alert request repeats the enclosing repository page;
		// following its repo cursor again would refetch pages the repo-axis
		// tasks already cover.
		if t.axis != axisAlert && tn.Repositories.PageInfo.HasNextPage {
			followups = append(followups, task{
				axis:     axisRepo,
				teamSlug: tn.Slug,
				cursor:   tn.Repositories.PageInfo.EndCursor,
			})
		}
	}

	// The team axis only advances from unscoped requests; scoped requests
	// filter to a single team and their team pagination is meaningless.
	if t.axis == axisTeam && page.PageInfo.HasNextPage {
		followups = append(followups, task{
			axis:   axisTeam,
			cursor: page.PageInfo.EndCursor,
		})
	}

	return followups
}

func (b *resultBuilder) team(slug, name string) *teamAcc {
	if existing, ok := b.teamIdx[slug]; ok {
		return existing
	}
	team := &teamAcc{slug: slug, name: name, repoIdx: make(map[string]*repoAcc)}
	b.teams = append(b.teams, team)
	b.teamIdx[slug] = team
	return team
}

func (t *teamAcc) repo(name string) *repoAcc {
	if existing, ok := t.repoIdx[name]; ok {
		return existing
	}
	repo := &repoAcc{name: name, seen: make(map[string]struct{})}
	t.repos = append(t.repos, repo)
	t.repoIdx[name] = repo
	return repo
}

func (r *repoAcc) addAlert(a Alert) {
	if _, ok := r.seen[a.ID]; ok {
		return
	}
	r.seen[a.ID] = struct{}{}
	r.alerts = append(r.alerts, a)
}

// finalize materializes the hierarchy with every PageInfo normalized to
// complete.
func (b *resultBuilder) finalize() *MergedResult {
	complete := PageInfo{HasNextPage: false, EndCursor: nil}

	result := &MergedResult{Teams: make([]Team, 0, len(b.teams)), TeamPageInfo: complete}
	for _, ta := range b.teams {
		team := Team{
			Slug:         ta.slug,
			Name:         ta.name,
			Repositories: make([]Repository, 0, len(ta.repos)),
			RepoPageInfo: complete,
		}
		for _, ra := range ta.repos {
			team.Repositories = append(team.Repositories, Repository{
				Name:          ra.name,
				Alerts:        ra.alerts,
				AlertPageInfo: complete,
			})
		}
		result.Teams = append(result.Teams, team)
	}
	return result
}
