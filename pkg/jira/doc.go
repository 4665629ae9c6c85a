// Package jira is a small client for the parts of the Jira REST API v2 a
// project backup needs: paging through search results, fetching single
// issues and streaming attachments.
//
// Every request carries HTTP basic credentials and goes through a bounded
// retry loop (pkg/retry). Connection failures and 500/502/503/504 responses
// are retried; any other non-2xx response, or exhausted retries, surfaces as
// a *errors.Error carrying the status code.
//
//	client, err := jira.NewClient(jira.Options{
//		BaseURL:       "http://jira.example.com:8090",
//		Username:      user,
//		Password:      secret,
//		MaxRetries:    4,
//		BackoffFactor: 200 * time.Millisecond,
//	})
//	page, err := client.ListIssues(ctx, "RSL", 0, 100)
//	for _, ref := range page.Issues {
//		issue, err := client.FetchIssue(ctx, ref.Self)
//		...
//	}
package jira
