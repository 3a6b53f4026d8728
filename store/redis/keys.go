package redis

// Key prefixes.
const (
	prefixGeocode = "convene:geo:"
	prefixLock    = "convene:lock:"
)

// geocodeKey returns the cache key for a normalized address.
func geocodeKey(address string) string {
	return prefixGeocode + address
}

// lockKey returns the key guarding a lock name.
func lockKey(name string) string {
	return prefixLock + name
}
