package murmur

import (
	"time"

	"github.com/golang/glog"
)

// Logging convention in the `murmur` package:
// Info:
//     essential events for abnormal behavior. This level should be silent on
//     normal operation.
//     this includes:
//     - remote call failures and rollbacks
//     - event stream connect errors and reconnects
// V(2):
//     key events for trace debugging
//     this includes:
//     - cache writes, invalidations, snapshot/restore
//     - individual fetches and superseded fetch results

func Trace(tag string, fn func()) {
	start := time.Now()
	fn()
	end := time.Now()
	glog.V(2).Infof("%s: %.2fms\n", tag, float64(end.Sub(start))/float64(time.Millisecond))
}

func TraceWithReturn[R any](tag string, fn func() R) R {
	start := time.Now()
	r := fn()
	end := time.Now()
	glog.V(2).Infof("%s: %.2fms\n", tag, float64(end.Sub(start))/float64(time.Millisecond))
	return r
}

func TraceWithReturnError[R any](tag string, fn func() (R, error)) (R, error) {
	start := time.Now()
	r, err := fn()
	end := time.Now()
	glog.V(2).Infof("%s: %.2fms err=%v\n", tag, float64(end.Sub(start))/float64(time.Millisecond), err)
	return r, err
}
