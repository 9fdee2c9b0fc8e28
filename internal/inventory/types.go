// Vulnsync - Distributed Vulnerability Intelligence Synchronization
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: Apache-2.0
// https://github.com/kestrelsec/vulnsync

package inventory

// PageInfo is the per-axis pagination state the remote API returns.
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// Alert is one security alert on a repository.
type Alert struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	Severity    string `json:"severity"`
	PackageName string `json:"packageName"`
	CreatedAt   string `json:"createdAt"`
}

// Repository is one repository with its alerts. AlertPageInfo reflects the
// remote pagination state while the drill-down runs; in a finished result it
// is normalized to complete.
type Repository struct {
	Name          string   `json:"name"`
	Alerts        []Alert  `json:"alerts"`
	AlertPageInfo PageInfo `json:"alertPageInfo"`
}

// Team is one team with its repositories.
type Team struct {
	Slug         string       `json:"slug"`
	Name         string       `json:"name"`
	Repositories []Repository `json:"repositories"`
	RepoPageInfo PageInfo     `json:"repoPageInfo"`
}

// MergedResult is the fully materialized team hierarchy. Every PageInfo in a
// MergedResult returned by the engine reads {hasNextPage: false, endCursor:
// nil}, signaling that no further paging is needed.
type MergedResult struct {
	Teams        []Team   `json:"teams"`
	TeamPageInfo PageInfo `json:"teamPageInfo"`
}

// Wire shapes for the GraphQL response. Connections mirror the query in
// drilldown.go; the drill-down converts them into the merged types above.

type alertsQueryData struct {
	Organization *organizationNode `json:"organization"`
}

type organizationNode struct {
	Teams teamConnection `json:"teams"`
}

type teamConnection struct {
	PageInfo PageInfo   `json:"pageInfo"`
	Nodes    []teamNode `json:"nodes"`
}

type teamNode struct {
	Slug         string               `json:"slug"`
	Name         string               `json:"name"`
	Repositories repositoryConnection `json:"repositories"`
}

type repositoryConnection struct {
	PageInfo PageInfo         `json:"pageInfo"`
	Nodes    []repositoryNode `json:"nodes"`
}

type repositoryNode struct {
	Name   string          `json:"name"`
	Alerts alertConnection `json:"vulnerabilityAlerts"`
}

type alertConnection struct {
	PageInfo PageInfo    `json:"pageInfo"`
	Nodes    []alertNode `json:"nodes"`
}

type alertNode struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	CreatedAt string `json:"createdAt"`

	SecurityVulnerability struct {
		Severity string `json:"severity"`
		Package  struct {
			Name string `json:"name"`
		} `json:"package"`
	} `json:"securityVulnerability"`
}

func (n alertNode) toAlert() Alert {
	return Alert{
		ID:          n.ID,
		State:       n.State,
		Severity:    n.SecurityVulnerability.Severity,
		PackageName: n.SecurityVulnerability.Package.Name,
		CreatedAt:   n.CreatedAt,
	}
}
