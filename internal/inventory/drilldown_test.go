// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kestrelsec/vulnsync/internal/config"
)

func testEngineConfig() *config.GitHubConfig {
	return &config.GitHubConfig{
		BaseURL:       "https://api.github.com/graphql",
		Token:         "test-token",
		Org:           "kestrelsec",
		TeamPageSize:  2,
		RepoPageSize:  1,
		AlertPageSize: 2,
	}
}

func alert(id string) alertNode {
	n := alertNode{ID: id, State: "OPEN", CreatedAt: "2024-05-01T00:00:00Z"}
	n.SecurityVulnerability.Severity = "HIGH"
	n.SecurityVulnerability.Package.Name = "libexample"
	return n
}

func nextPage(cursor string) PageInfo {
	return PageInfo{HasNextPage: true, EndCursor: &cursor}
}

// fakeAlertsAPI scripts a three-team fixture:
//
//   - alpha: one repo "web" with one alert, everything complete
//   - platform: two repo pages ("api-server", then a duplicate "api-server"
//     plus "worker"); api-server's alerts span two pages with one overlap
//   - security: one repo "scanner", on the second team page
type fakeAlertsAPI struct {
	requests   []map[string]any
	failOnCall int // 1-based request index to fail on, 0 means never
}

func (f *fakeAlertsAPI) Query(_ context.Context, _ string, vars map[string]any, out any) error {
	f.requests = append(f.requests, vars)
	if f.failOnCall > 0 && len(f.requests) >= f.failOnCall {
		return &QueryError{Errors: []GraphQLError{{Message: "boom"}}}
	}

	data, ok := out.(*alertsQueryData)
	if !ok {
		return fmt.Errorf("unexpected output type %T", out)
	}
	teams, err := f.respond(vars)
	if err != nil {
		return err
	}
	data.Organization = &organizationNode{Teams: teams}
	return nil
}

func (f *fakeAlertsAPI) respond(vars map[string]any) (teamConnection, error) {
	teamQuery, _ := vars["teamQuery"].(string)
	repoQuery, _ := vars["repoQuery"].(string)
	teamCursor, _ := vars["teamCursor"].(string)
	repoCursor, _ := vars["repoCursor"].(string)
	alertCursor, _ := vars["alertCursor"].(string)

	switch {
	case teamQuery == "platform" && repoQuery == "api-server" && alertCursor == "a2":
		// Second alert page for platform/api-server, overlapping on A2.
		return teamConnection{Nodes: []teamNode{{
			Slug: "platform",
			Name: "Platform",
			Repositories: repositoryConnection{Nodes: []repositoryNode{{
				Name:   "api-server",
				Alerts: alertConnection{Nodes: []alertNode{alert("A2"), alert("A3")}},
			}}},
		}}}, nil

	case teamQuery == "platform" && repoQuery == "" && repoCursor == "r1":
		// Second repo page for platform; api-server reappears.
		return teamConnection{Nodes: []teamNode{{
			Slug: "platform",
			Name: "Platform",
			Repositories: repositoryConnection{Nodes: []repositoryNode{
				{Name: "api-server", Alerts: alertConnection{Nodes: []alertNode{alert("A1")}}},
				{Name: "worker"},
			}},
		}}}, nil

	case teamQuery == "" && teamCursor == "t2":
		return teamConnection{Nodes: []teamNode{{
			Slug: "security",
			Name: "Security",
			Repositories: repositoryConnection{Nodes: []repositoryNode{{
				Name:   "scanner",
				Alerts: alertConnection{Nodes: []alertNode{alert("S1")}},
			}}},
		}}}, nil

	case teamQuery == "" && teamCursor == "":
		return teamConnection{
			PageInfo: nextPage("t2"),
			Nodes: []teamNode{
				{
					Slug: "alpha",
					Name: "Alpha",
					Repositories: repositoryConnection{Nodes: []repositoryNode{{
						Name:   "web",
						Alerts: alertConnection{Nodes: []alertNode{alert("W1")}},
					}}},
				},
				{
					Slug: "platform",
					Name: "Platform",
					Repositories: repositoryConnection{
						PageInfo: nextPage("r1"),
						Nodes: []repositoryNode{{
							Name: "api-server",
							Alerts: alertConnection{
								PageInfo: nextPage("a2"),
								Nodes:    []alertNode{alert("A1"), alert("A2")},
							},
						}},
					},
				},
			},
		}, nil
	}

	return teamConnection{}, fmt.Errorf("unexpected request variables: %v", vars)
}

// TestFetchAll_MaterializesCompleteHierarchy drills every axis of the
// fixture and verifies completeness, dedup, and merge order.
func TestFetchAll_MaterializesCompleteHierarchy(t *testing.T) {
	api := &fakeAlertsAPI{}
	engine := NewEngine(testEngineConfig(), api)

	result, err := engine.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	if len(api.requests) != 4 {
		t.Errorf("expected 4 requests, got %d", len(api.requests))
	}
	if len(result.Teams) != 3 {
		t.Fatalf("expected 3 teams, got %d", len(result.Teams))
	}

	wantSlugs := []string{"alpha", "platform", "security"}
	for i, want := range wantSlugs {
		if result.Teams[i].Slug != want {
			t.Errorf("team %d: expected %q, got %q", i, want, result.Teams[i].Slug)
		}
	}

	platform := result.Teams[1]
	if len(platform.Repositories) != 2 {
		t.Fatalf("platform: expected 2 repositories after dedup, got %d", len(platform.Repositories))
	}
	if platform.Repositories[0].Name != "api-server" || platform.Repositories[1].Name != "worker" {
		t.Errorf("platform repositories out of order: %q, %q",
			platform.Repositories[0].Name, platform.Repositories[1].Name)
	}

	// The union of both alert pages in fetch order, duplicates dropped.
	apiServer := platform.Repositories[0]
	wantAlerts := []string{"A1", "A2", "A3"}
	if len(apiServer.Alerts) != len(wantAlerts) {
		t.Fatalf("api-server: expected %d alerts, got %d", len(wantAlerts), len(apiServer.Alerts))
	}
	for i, want := range wantAlerts {
		if apiServer.Alerts[i].ID != want {
			t.Errorf("alert %d: expected %q, got %q", i, want, apiServer.Alerts[i].ID)
		}
	}

	if result.Teams[2].Repositories[0].Alerts[0].ID != "S1" {
		t.Error("security/scanner alert missing from second team page")
	}
}

// TestFetchAll_NormalizesPageInfo verifies every PageInfo in the finished
// result signals complete.
func TestFetchAll_NormalizesPageInfo(t *testing.T) {
	engine := NewEngine(testEngineConfig(), &fakeAlertsAPI{})

	result, err := engine.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	checkComplete := func(context string, info PageInfo) {
		t.Helper()
		if info.HasNextPage || info.EndCursor != nil {
			t.Errorf("%s: PageInfo not normalized: %+v", context, info)
		}
	}

	checkComplete("teams", result.TeamPageInfo)
	for _, team := range result.Teams {
		checkComplete("team "+team.Slug, team.RepoPageInfo)
		for _, repo := range team.Repositories {
			checkComplete(team.Slug+"/"+repo.Name, repo.AlertPageInfo)
		}
	}
}

// TestFetchAll_HoldsOuterCursorsFixed verifies follow-up requests scope by
// filter and advance exactly one cursor.
func TestFetchAll_HoldsOuterCursorsFixed(t *testing.T) {
	api := &fakeAlertsAPI{}
	engine := NewEngine(testEngineConfig(), api)

	if _, err := engine.FetchAll(context.Background()); err != nil {
		t.Fatalf("FetchAll: %v", err)
	}

	for _, vars := range api.requests {
		_, hasTeamQuery := vars["teamQuery"]
		_, hasTeamCursor := vars["teamCursor"]
		_, hasRepoCursor := vars["repoCursor"]
		_, hasAlertCursor := vars["alertCursor"]

		if hasTeamQuery && hasTeamCursor {
			t.Errorf("scoped request must not advance the team cursor: %v", vars)
		}
		if hasRepoCursor && hasAlertCursor {
			t.Errorf("request advances two axes at once: %v", vars)
		}
		if vars["org"] != "kestrelsec" {
			t.Errorf("request missing org: %v", vars)
		}
	}
}

// TestFetchAll_AbortsOnError verifies any remote failure aborts the whole
// call with no partial result.
func TestFetchAll_AbortsOnError(t *testing.T) {
	api := &fakeAlertsAPI{failOnCall: 2}
	engine := NewEngine(testEngineConfig(), api)

	result, err := engine.FetchAll(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if result != nil {
		t.Error("expected no partial result on failure")
	}

	var queryErr *QueryError
	if !errors.As(err, &queryErr) {
		t.Errorf("expected QueryError, got %T", err)
	}
}

// missingOrgAPI returns a payload without the organization object.
type missingOrgAPI struct{}

func (missingOrgAPI) Query(_ context.Context, _ string, _ map[string]any, out any) error {
	out.(*alertsQueryData).Organization = nil
	return nil
}

func TestFetchAll_MissingOrganizationFailsLoudly(t *testing.T) {
	engine := NewEngine(testEngineConfig(), missingOrgAPI{})

	_, err := engine.FetchAll(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); got != `graphql response missing required field "organization"` {
		t.Errorf("error should name the missing field, got %q", got)
	}
}
