//go:build darwin

package config

import "os/exec"

// keychainExec looks a secret up in the macOS Keychain via the security CLI.
// A missing entry surfaces as the command's non-zero exit error.
func keychainExec(service, account string) ([]byte, error) {
	return exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
}
