package cli

import (
	"sort"

	"github.com/pkg/profile"
)

var profileMode = map[string]func(*profile.Profile){
	"block":     profile.BlockProfile,
	"cpu":       profile.CPUProfile,
	"clock":     profile.ClockProfile,
	"goroutine": profile.GoroutineProfile,
	"mem":       profile.MemProfile,
	"allocs":    profile.MemProfileAllocs,
	"heap":      profile.MemProfileHeap,
	"mutex":     profile.MutexProfile,
	"thread":    profile.ThreadcreationProfile,
	"trace":     profile.TraceProfile,
}

func profileModes() []string {
	modes := make([]string, 0, len(profileMode))
	for mode := range profileMode {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// startProfile starts profiling in the given mode and returns the function
// that stops it. An empty mode is a no-op.
func startProfile(mode, dir string) (stop func()) {
	fn, ok := profileMode[mode]
	if !ok {
		return func() {}
	}
	p := profile.Start(fn, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook)
	return p.Stop
}
