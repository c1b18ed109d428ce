// Package config defines configuration structures for the download manager.
//
// Configuration can be provided via, from lowest to highest precedence:
//   - YAML configuration file
//   - .env file
//   - Environment variables (MANAGER_ prefix)
//   - Command-line flags
//
// # Structure
//
//	type Config struct {
//	    Addr            string
//	    ActiveDownloads int
//	    DownloadPath    string
//	    PollInterval    time.Duration
//	    LockFile        string
//	    ShutdownTimeout time.Duration
//	    Log             LogConfig
//	    HTTP            HTTPConfig
//	    Control         ControlConfig
//	}
//
// Durations are written as Go duration strings ("250ms", "1m") and sizes
// as byte counts with an optional unit ("64KiB", "1MB").
package config
