// Package workflow runs download jobs end to end.
//
// The Orchestrator admits a request against the concurrency limit, resolves
// the URL through the extractor, picks a stream for the requested quality
// tier, allocates a private workspace, hands the stream to the pipeline
// executor, and finally invokes the caller's delivery callback while the
// artifact still exists. Every job runs under one deadline and its
// workspace is released before Execute returns, whatever the outcome.
//
// Failures keep the kind assigned by the component that produced them. The
// orchestrator only adds job context, except for deadline expiry and caller
// cancellation, which it reports as Timeout and Canceled respectively.
package workflow
