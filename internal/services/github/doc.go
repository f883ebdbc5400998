// Package github implements tracker.Tracker against the GitHub REST API using
// the go-gh client. Credentials come from configuration, the GH_TOKEN and
// GITHUB_TOKEN environment variables, or the gh CLI's stored login.
package github
