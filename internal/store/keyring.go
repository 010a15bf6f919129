package store

import (
	"os"

	zkr "github.com/zalando/go-keyring"
)

const (
	serviceName = "chatlink"
	accountName = "session-token"
)

func keyringGet() (string, error) {
	return zkr.Get(serviceName, accountName)
}

func keyringSet(token string) error {
	return zkr.Set(serviceName, accountName, token)
}

func keyringDelete() error {
	return zkr.Delete(serviceName, accountName)
}

// keyringAvailable returns true if the OS keychain is functional.
// Returns false if CHATLINK_KEYRING_DISABLED=1 is set (opt-in for
// headless/CI/Docker). Otherwise probes the keychain with a test
// write/delete cycle.
func keyringAvailable() bool {
	if os.Getenv("CHATLINK_KEYRING_DISABLED") == "1" {
		return false
	}
	testService := "chatlink-keyring-probe"
	testAccount := "probe"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}
