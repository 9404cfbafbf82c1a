// Package bind binds native signatures to snippets.
//
// A snippet is called from native code through a foreign declaration in the
// env import namespace. The declaration carries no logic; the loader resolves
// it to the snippet at instantiation time. CheckArity is the only check made
// between a signature and its snippet.
package bind
