// Package ingest fetches raw messages from connected mailboxes. Each
// provider (Gmail, Outlook, generic IMAP) implements Fetcher; the sync
// worker turns the fetched messages into persisted emails.
package ingest
