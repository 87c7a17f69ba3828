//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens the policy file on Windows. There is no O_NOFOLLOW;
// symlink creation requires elevated privileges there, so the permission
// check remains the primary control.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership is a no-op on Windows, which uses ACLs instead of
// POSIX ownership.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
