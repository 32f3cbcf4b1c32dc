package livedemo

import "fmt"

// FormatElapsed renders seconds as mm:ss. Minutes are not capped at 59.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
