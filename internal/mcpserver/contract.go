package mcpserver

// FrontMatterContract documents the front matter fields the syndicator reads
// and writes.
const FrontMatterContract = `# Syndication Front Matter

Authors request syndication in a post's YAML front matter. The syndicator
records progress in the same block and commits it back.

## Author fields

` + "```" + `yaml
---
title: Hello world
syndicate:            # targets to publish to
  - mastodon          # aliases work too: fediverse -> mastodon
  - bluesky
canonical: /blog/hello-world/   # OPTIONAL, defaults to /blog/<slug>/
---
` + "```" + `

` + "`syndicate`" + ` also accepts a single string (` + "`syndicate: mastodon`" + `) or
flags (` + "`syndicate: {mastodon: true, bluesky: false}`" + `).

## Fields written by the syndicator

| Key | Meaning |
|---|---|
| ` + "`syndication`" + ` | map of target -> published URL |
| ` + "`syndicationStatus`" + ` | map of target -> pending, requested, failed or confirmed |
| ` + "`syndicationRequestedAt`" + ` | map of target -> time of the last publish request |
| ` + "`syndicationCheckedAt`" + ` | map of target -> time of the last confirmation check |
| ` + "`syndicationLastError`" + ` | map of target -> last diagnostic, at most 160 characters |
| ` + "`syndicationComplete`" + ` | true once every wished target has a URL |

## Rules

1. Targets are removed from ` + "`syndicate`" + ` once they have a URL. When the list
   empties, the key is dropped and ` + "`syndicationComplete: true`" + ` is set.
2. A target with a URL is always ` + "`confirmed`" + `. Confirmed never goes back.
3. A ` + "`requested`" + ` target is re-checked on a cooldown that grows with its age
   (15 min, 1 h, 3 h, 6 h) and becomes ` + "`failed`" + ` after 48 h without a URL.
4. A ` + "`failed`" + ` target is retried 6 h after its last request.
5. Commits made by the syndicator start with ` + "`Syndication:`" + ` and never trigger
   another run.
6. Adding a URL to ` + "`syndication`" + ` by hand marks the target confirmed on the
   next run.
`
