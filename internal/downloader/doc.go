// Package downloader streams issue attachments to local files in bounded
// chunks so no attachment is ever held in memory whole.
package downloader
