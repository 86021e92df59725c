package srt

import (
	"os"
	"sync"

	srtgo "github.com/zsiec/srtgo"
)

// runtime tracks the process-wide SRT library lifecycle: srt_startup is
// invoked exactly once before the first endpoint activates, srt_cleanup
// exactly once after the last endpoint stops. Every Server and Client
// acquires a reference in Run and releases it in Stop.
var runtime struct {
	mu    sync.Mutex
	count int
}

// acquireRuntime initializes the SRT library on the first call in the
// process and applies SRT_LOG_LEVEL. Safe to call concurrently from
// multiple Server/Client Run calls.
func acquireRuntime() error {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	if runtime.count == 0 {
		if err := srtgo.Startup(); err != nil {
			return err
		}
		srtgo.SetLogLevel(resolveLogLevel())
	}
	runtime.count++
	return nil
}

// releaseRuntime tears down the SRT library once the last endpoint has
// stopped.
func releaseRuntime() {
	runtime.mu.Lock()
	defer runtime.mu.Unlock()

	if runtime.count == 0 {
		return
	}
	runtime.count--
	if runtime.count == 0 {
		srtgo.Cleanup()
	}
}

// resolveLogLevel maps SRT_LOG_LEVEL to one of the five SRT library log
// levels, defaulting to "error" when unset or unrecognized.
func resolveLogLevel() string {
	switch os.Getenv("SRT_LOG_LEVEL") {
	case "debug":
		return "debug"
	case "notice":
		return "notice"
	case "warning":
		return "warning"
	case "error":
		return "error"
	case "fatal":
		return "fatal"
	default:
		return "error"
	}
}
