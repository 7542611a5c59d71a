// Package audio picks which extractor format a job fetches.
//
// Select is a pure function: the same streams and tier always produce the
// same pick, so it can be tested exhaustively without any tooling.
package audio
