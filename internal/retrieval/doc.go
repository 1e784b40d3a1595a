// Package retrieval holds the read-path algorithms: structural facet
// filtering, similarity ranking with optional re-ranking, and token-budgeted
// context assembly. Everything here is a total function over in-memory data;
// storage and collaborators live in the app package.
package retrieval
