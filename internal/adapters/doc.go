// Package adapters connects the gateway to external data sources.
//
// An Adapter is created from a Factory registered under a type id, then
// initialized with a loose config map and stored in the Manager under an
// instance id. Two types ship by default:
//
//	rest_api - base_url, headers, timeout_seconds, follow_redirects
//	postgres - dsn, or host/port/user/password/database; min/max_connections
//
// Execute takes a DataRequest. The REST adapter reads "METHOD /path" from
// Query and params, headers and body from Parameters. The Postgres adapter
// treats Query as SQL with positional args in Parameters["args"].
package adapters
