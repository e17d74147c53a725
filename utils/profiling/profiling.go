// Package profiling writes a CPU profile of the run into the log
// directory when the --profiling flag is set.
package profiling

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/pprof"
)

// Profile is a running CPU profile.
type Profile struct {
	file *os.File
}

// Start begins profiling into <log_directory>/<target-type>_runtime.prof.
func Start(targetType, logDirectory string) (*Profile, error) {
	path := filepath.Join(logDirectory, targetType+"_runtime.prof")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("start cpu profile: %w", err)
	}
	return &Profile{file: f}, nil
}

// Stop ends profiling and flushes the profile file.
func (p *Profile) Stop() {
	if p == nil {
		return
	}
	pprof.StopCPUProfile()
	p.file.Close()
}
