package instance

import "os"

// GetID identifies the running process in logs: the dyno name when set,
// then the host name, then "local".
func GetID() string {
	for _, key := range []string{"DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
