// Blogcheck cross-checks the index document of the blog against the content
// objects in the store. It reports content objects no index entry points to
// (orphans, typically left behind when an index save failed after the content
// write), index entries without content, and ids listed twice.
//
// With -repair, orphans are added back to the index using their header lines.
// Index entries without content are only reported.
//
// It reads the blogserver configuration file and exits with status 1 if the
// store is inconsistent after the (optional) repair.
package main // import "github.com/JonasunderscoreJones/rss.jonasjones.dev/cmd/blogcheck"
