// Package ticket proxies a small, validated subset of the Jira REST API.
package ticket

import "context"

// TicketSummary is the normalized view of an issue returned to the dashboard.
type TicketSummary struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	Priority string `json:"priority,omitempty"`
	Updated  string `json:"updated,omitempty"`
}

type SearchResult struct {
	Total  int             `json:"total"`
	Issues []TicketSummary `json:"issues"`
}

type Comment struct {
	ID      string `json:"id"`
	Author  string `json:"author,omitempty"`
	Body    string `json:"body"`
	Created string `json:"created,omitempty"`
}

// Tracker is the upstream issue tracker.
type Tracker interface {
	GetIssue(ctx context.Context, key string) (*TicketSummary, error)
	Search(ctx context.Context, jql string, maxResults int) (*SearchResult, error)
	AddComment(ctx context.Context, key, body string) (*Comment, error)
	Transition(ctx context.Context, key string, transitionID int) error
}

// Jira wire shapes. Only the fields the dashboard shows are decoded.
type jiraNamed struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary  string     `json:"summary"`
		Status   *jiraNamed `json:"status"`
		Assignee *jiraNamed `json:"assignee"`
		Priority *jiraNamed `json:"priority"`
		Updated  string     `json:"updated"`
	} `json:"fields"`
}

type jiraSearch struct {
	Total  int         `json:"total"`
	Issues []jiraIssue `json:"issues"`
}

type jiraComment struct {
	ID      string     `json:"id"`
	Author  *jiraNamed `json:"author"`
	Body    string     `json:"body"`
	Created string     `json:"created"`
}

func (i jiraIssue) summary() TicketSummary {
	out := TicketSummary{Key: i.Key, Summary: i.Fields.Summary, Updated: i.Fields.Updated}
	if i.Fields.Status != nil {
		out.Status = i.Fields.Status.Name
	}
	if i.Fields.Assignee != nil {
		out.Assignee = i.Fields.Assignee.DisplayName
	}
	if i.Fields.Priority != nil {
		out.Priority = i.Fields.Priority.Name
	}
	return out
}

func (c jiraComment) comment() Comment {
	out := Comment{ID: c.ID, Body: c.Body, Created: c.Created}
	if c.Author != nil {
		out.Author = c.Author.DisplayName
	}
	return out
}
