// Package notify stores rule-generated notifications in a per-owner
// inbox, with optional email mirroring for SEND_EMAIL actions.
package notify
