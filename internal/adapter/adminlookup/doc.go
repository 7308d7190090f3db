// Package adminlookup answers "is this user an administrator of this chat?".
//
// Static serves a configured id list, HTTP asks the chat platform bridge,
// Cached memoizes any checker with an expiring LRU, and Any combines checkers.
package adminlookup
