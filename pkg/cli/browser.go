package cli

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser opens rawURL with the default browser of the desktop.
func OpenBrowser(rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd", "netbsd":
		cmd = exec.Command("xdg-open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	case "darwin":
		cmd = exec.Command("open", rawURL)
	default:
		return fmt.Errorf("cli: unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
