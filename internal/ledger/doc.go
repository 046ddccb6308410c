// Package ledger persists the set of already-notified event identities
// with their first-seen timestamps.
//
// It is the sole source of truth for "have we already told the channel
// about this". Entries are swept by age every cycle so the ledger never
// grows without bound.
package ledger
