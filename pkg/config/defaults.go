package config

import "time"

// Default configuration values.
const (
	DefaultTarget          = "wgsl"
	DefaultMaxDepth        = 64
	DefaultSlangcPath      = "slangc"
	DefaultCompilerTimeout = 30 * time.Second
	DefaultCacheEnabled    = true
	DefaultCacheMaxSize    = "32MB"
	DefaultBuildJobs       = 4
	DefaultWatchDebounce   = 200 * time.Millisecond
	DefaultLogLevel        = "info"
)
