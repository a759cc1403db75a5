// Package gitignore matches slash-separated relative paths against
// .gitignore pattern syntax (https://git-scm.com/docs/gitignore).
//
// The index uses it as the default exclusion predicate: LoadTree collects every
// .gitignore below a root, each scoped to its own directory.
package gitignore
