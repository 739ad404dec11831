// Package process runs the shell commands bound to buttons and switches.
//
// Each command runs as `sh -c <command>` in its own process group so a
// timeout or cancellation can stop the whole pipeline it spawned: the group
// gets SIGTERM first and SIGKILL if it is still alive after the grace period.
//
// Example usage:
//
//	runner := process.NewRunner(process.Config{Timeout: 30 * time.Second})
//	res, err := runner.Run(ctx, "loginctl lock-session")
//	if err != nil {
//	    logger.Warn("button command failed", "error", err, "stderr", res.Stderr)
//	}
package process
