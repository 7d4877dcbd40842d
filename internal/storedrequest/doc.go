// Package storedrequest resolves stored request fragments referenced by
// incoming bid requests and merges them into the request.
//
// A request references a stored request through ext.prebid.storedrequest.id,
// and each imp can reference a stored imp the same way. Fragments are fetched
// from a Fetcher (database, S3, optionally behind a cache) and the incoming
// JSON is merged on top of the stored JSON, so values sent by the caller win.
package storedrequest
