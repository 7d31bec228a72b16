// Package credentials resolves Inventronix API credentials for a device.
//
// The INVENTRONIX_API_KEY environment variable always wins; otherwise the
// key is looked up in the operating system keyring, keyed by project ID,
// so gateway deployments don't need secrets baked into unit files.
package credentials

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

// keyring service name; entries are keyed by project ID.
const service = "inventronix"

// APIKey returns the API key for projectID, preferring the
// INVENTRONIX_API_KEY environment variable over the OS keyring.
func APIKey(projectID string) (string, error) {
	if v := os.Getenv("INVENTRONIX_API_KEY"); v != "" {
		return v, nil
	}
	key, err := keyring.Get(service, projectID)
	if err != nil {
		return "", fmt.Errorf("credentials: no API key for project %s (set INVENTRONIX_API_KEY or store one): %w", projectID, err)
	}
	return key, nil
}

// Store saves the API key for projectID in the OS keyring.
func Store(projectID, apiKey string) error {
	if err := keyring.Set(service, projectID, apiKey); err != nil {
		return fmt.Errorf("credentials: store key for project %s: %w", projectID, err)
	}
	return nil
}

// Delete removes the stored API key for projectID.
func Delete(projectID string) error {
	if err := keyring.Delete(service, projectID); err != nil {
		return fmt.Errorf("credentials: delete key for project %s: %w", projectID, err)
	}
	return nil
}
