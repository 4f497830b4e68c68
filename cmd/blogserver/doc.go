// Blogserver serves the RSS feed of the blog on GET /blog and, unless
// configured read-only, lets the holder of the shared secret create, update
// and delete posts via POST /blog/new_post and DELETE /blog/delete_post.
//
// Posts live in an object store: the index document (a JSON array of post
// summaries, by default at blog/index.json) and one markdown document per post
// at blog/posts/YYYY/MM/DD/{id}.md. The feed may be read through a CDN in
// front of the store ("read_from": "cdn"), in which case new posts show up in
// the feed only once the CDN has caught up.
//
// The shared secret is read from the environment variable named by
// "auth_key_env" (BLOG_AUTH_KEY by default) and compared with the
// X-Custom-Auth-Key request header.
package main // import "github.com/JonasunderscoreJones/rss.jonasjones.dev/cmd/blogserver"
