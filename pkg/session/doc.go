// Package session manages the lifecycle of upload sessions.
//
// Each session owns one extracted archive: a directory on disk, the scenario
// set opened over it, and the detected slot granularity. The Manager bounds
// how many sessions exist at once (globally and per client IP), evicts idle
// sessions when the bound is hit, and expires sessions that go untouched for
// the configured TTL.
//
// Session manifests persist through a pluggable Store so a restarted server
// can resume sessions whose extracted directories survived. Three backends
// ship: MemoryStore for single-process deployments, RedisStore for shared
// state, and SQLStore for anything with a database/sql driver.
package session
