// Package snippet turns raw script text into the decorated payload the loader
// parses:
//
//	"(" + join(params, ",") + ")<::>{" + Normalize(body) + "}" + NUL
//
// Normalize canonicalizes whitespace, Encode builds the bytes and Size
// computes their length on a separate code path. Compile runs all three and
// fails with a size_mismatch error if the two lengths ever disagree.
package snippet
