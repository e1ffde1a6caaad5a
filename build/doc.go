// Package build runs an ordered list of activities as one build and tracks the
// state of each.
//
// # Activity lifecycle
//
//	NotStarted -> Pending -> Running -> Completed
//	                      \-> Skipped
//
// Every activity's Init runs before any Execute. If an Init fails, nothing
// executes and every activity stays NotStarted with an "initialization blocked"
// error.
//
// Activities then run sequentially. An activity is skipped when the context is
// cancelled, when an earlier activity failed without ContinueOnError, or when
// one of its DependsOn activities did not succeed.
//
// # Build status
//
// A build is Succeeded when every activity completed without error,
// PartiallySucceeded when some returned a Warning, and Failed when any returned
// a plain error, the build was cancelled, or an activity called MarkFailed.
//
//	b := build.New(build.WithLogger(logger))
//	_ = b.AddActivity(build.ActivityID{Kind: "rest", Name: "deploy"}, deploy)
//	_ = b.AddActivity(build.ActivityID{Kind: "ssh", Name: "warmup"}, warmup,
//		build.DependsOn(build.ActivityID{Kind: "rest", Name: "deploy"}))
//	err := b.Execute(ctx)
//	fmt.Println(b.Status())
package build
