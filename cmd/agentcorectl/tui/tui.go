package tui

import "fmt"

// Run starts the dashboard for the given view type.
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	snapshot, ok := data.(func() Snapshot)
	if !ok {
		return fmt.Errorf("dashboard requires a Snapshot-producing func, got %T", data)
	}
	return RunDashboard(snapshot)
}

// IsTUISupported returns true if the view type supports TUI mode. Only the
// live status dashboard does.
func IsTUISupported(viewType string) bool {
	return viewType == "dashboard"
}

// SupportedTUIViews returns the view types that support TUI mode.
func SupportedTUIViews() []string {
	return []string{"dashboard"}
}
