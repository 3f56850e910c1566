/**
 * @description
 * This file implements the email registry: an in-memory mapping from an email
 * address to the connection IDs currently authenticated as that user. A user
 * with several open tabs or devices holds several connections under one email.
 *
 * @notes
 * - The registry is deliberately permissive: a connection may register under
 *   several emails, and re-registering the same email appends again. Callers
 *   that re-register receive duplicate fan-out; that matches the dashboard
 *   client's behavior of re-registering after every reconnect.
 * - A reverse index (connection ID -> emails) keeps Unregister O(1) in the
 *   number of emails a connection registered, instead of scanning every entry.
 * - State is process-local and rebuilt from nothing on restart; clients must
 *   re-register after reconnecting.
 */

package realtime

import "sync"

// Registry maps emails to their active connection IDs. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	byEmail map[string][]string
	byConn  map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byEmail: make(map[string][]string),
		byConn:  make(map[string][]string),
	}
}

// Register appends connID to the list for email, creating the entry if absent.
// It never fails; duplicate registrations are kept.
func (r *Registry) Register(email, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byEmail[email] = append(r.byEmail[email], connID)
	r.byConn[connID] = append(r.byConn[connID], email)
}

// Unregister removes connID from every email it registered under. Email
// entries left empty are deleted; the map never holds an empty list.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, email := range r.byConn[connID] {
		conns := r.byEmail[email]
		kept := conns[:0]
		for _, id := range conns {
			if id != connID {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(r.byEmail, email)
		} else {
			r.byEmail[email] = kept
		}
	}
	delete(r.byConn, connID)
}

// Lookup returns a copy of the connection IDs registered for email, or an
// empty slice when the email is unknown.
func (r *Registry) Lookup(email string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := r.byEmail[email]
	out := make([]string, len(conns))
	copy(out, conns)
	return out
}

// Emails returns how many distinct emails currently hold registrations.
func (r *Registry) Emails() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEmail)
}
