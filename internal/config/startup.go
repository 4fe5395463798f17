package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"photo-discovery/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// LogStartup prints the banner and system information.
func LogStartup() {
	printBanner()
	logSystemInfo()
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

func printBanner() {
	fmt.Fprintln(os.Stderr, "------------------------------------------------------------")
	fmt.Fprintln(os.Stderr, "  photo-discovery")
	fmt.Fprintln(os.Stderr, "------------------------------------------------------------")
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
	}

	logging.Info("")
}
