// Package admission gates requests on a caller's remaining credit balance.
//
// The Controller consults the usage ledger before a request consumes any
// resource: a denied caller never takes a concurrency slot, a rate-limiter
// tick, or a downstream dispatch. After a successful downstream call the
// consumed credits are recorded asynchronously; a recording failure is
// logged for reconciliation but never fails the already-completed request.
//
// Credit costs are supplied as configuration; plan limits and the
// authoritative balance live behind the Ledger interface. A short-TTL
// balance cache absorbs bursts of admission checks for the same user.
package admission
