//go:build linux

package main

import (
	"fmt"
	"os"
	"os/exec"
)

// mountCold shells out to rclone's FUSE mount, projecting the cold
// prefix as a lazy, read-on-access, write-through filesystem per
// §4.6 step 3. rclone is expected to be baked into the sandbox image;
// its absence (or an architecture without FUSE support) is not fatal.
func mountCold(e *env) error {
	if _, err := exec.LookPath("rclone"); err != nil {
		return fmt.Errorf("rclone not available: %w", err)
	}
	if err := os.MkdirAll(e.coldPath, 0o755); err != nil {
		return fmt.Errorf("create cold path: %w", err)
	}

	remote := fmt.Sprintf(":s3,region=%s:%s/%s", e.region, e.bucket, e.coldPrefix)
	cmd := exec.Command("rclone", "mount", remote, e.coldPath,
		"--vfs-cache-mode", "writes",
		"--daemon",
		"--allow-other",
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rclone mount: %w", err)
	}
	return nil
}

func unmountCold(e *env) error {
	cmd := exec.Command("fusermount", "-u", e.coldPath)
	return cmd.Run()
}
