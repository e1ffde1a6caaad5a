package activity

import "github.com/nomis52/cloudops/build"

// CaptureError runs f and, if it fails, reports the error on the status line.
// Warnings (see build.Warning) are marked differently from failures.
//
//	func (a *Deploy) Execute(ctx context.Context) error {
//	    return activity.CaptureError(a.StatusLine, func() error {
//	        a.StatusLine.Set("uploading package")
//	        return a.upload(ctx)
//	    })
//	}
func CaptureError(statusLine *StatusLine, f func() error) error {
	err := f()
	switch {
	case err == nil || statusLine == nil:
	case build.IsWarning(err):
		statusLine.Set("⚠️ " + err.Error())
	default:
		statusLine.Set("❌ " + err.Error())
	}
	return err
}
