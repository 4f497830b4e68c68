// Blobserver serves a storage.Store over HTTP, for use with its client,
// storage.RemoteStore. It stands in for the object store and the CDN when
// running the blog server locally. The backing store is configurable and
// defaults to a directory on disk.
//
// Requests address objects by path: GET, PUT and DELETE on "/blog/index.json"
// read, write and remove the object with key "blog/index.json". A PUT records
// the request's Content-Type and a GET answers with it. GET on "/" with a
// "prefix" query parameter lists the matching keys, one per line.
//
// If a key is not found, GETs return 404 with no body, which the client
// propagates as storage.ErrNotFound. Deleting a missing key succeeds. Invalid
// keys return 400, other methods 405, and store errors 500 with the error
// message in the body.
package main // import "github.com/JonasunderscoreJones/rss.jonasjones.dev/cmd/blobserver"
