// Package activity provides status reporting for build activities.
//
// An activity reports free-text progress through a StatusLine. Every update is
// logged with the activity ID and stored in a StatusHandler shared by the whole
// run, which the server exposes as the live status of the current build:
//
//	handler := activity.NewStatusHandler()
//	line := activity.NewStatusLine(id, logger, handler)
//	line.Set("waiting for operation op-42")
//	statuses := handler.All()
//
// CaptureError wraps an Execute body so a returned error also ends up on the
// status line.
package activity
