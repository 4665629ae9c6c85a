// Package storage writes backup entries to disk.
//
// Each issue becomes one directory under the backup root:
//
//	<root>/<status>/<summary>_<key>/
//	    jira.json
//	    <attachment files>
//
// Status and summary come from untrusted issue text, so both are passed
// through SanitizeName before they reach the filesystem. An entry that
// already exists is removed and rebuilt, never merged.
package storage
