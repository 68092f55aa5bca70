package autofill

import "strings"

const keychainPrefix = "autofill.keychain."

// SettingsStore is a key value store able to list and delete keys.
type SettingsStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// StoreKeychain keeps keychain items in the settings store, one key per item
// named after its service and account.
type StoreKeychain struct {
	store SettingsStore
}

// NewStoreKeychain creates a keychain over store.
func NewStoreKeychain(store SettingsStore) *StoreKeychain {
	return &StoreKeychain{store: store}
}

// Add stores an item for service.
func (k *StoreKeychain) Add(service, account, secret string) error {
	return k.store.Set(itemKey(service, account), secret)
}

// HasItems implements Keychain.
func (k *StoreKeychain) HasItems(service string) (bool, error) {
	keys, err := k.store.Keys(itemKey(service, ""))
	return len(keys) > 0, err
}

// DeleteItems implements Keychain.
func (k *StoreKeychain) DeleteItems(service string) error {
	keys, err := k.store.Keys(itemKey(service, ""))
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := k.store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Services returns the services holding at least one item.
func (k *StoreKeychain) Services() ([]string, error) {
	keys, err := k.store.Keys(keychainPrefix)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var services []string
	for _, key := range keys {
		service, _, _ := strings.Cut(strings.TrimPrefix(key, keychainPrefix), "\x1f")
		if _, ok := seen[service]; ok {
			continue
		}
		seen[service] = struct{}{}
		services = append(services, service)
	}
	return services, nil
}

// itemKey separates service and account with the unit separator so a
// service name never prefixes another one.
func itemKey(service, account string) string {
	return keychainPrefix + service + "\x1f" + account
}
