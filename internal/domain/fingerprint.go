package domain

import "strconv"

// Fingerprint derives the change-detection value for a remote item from its
// id and last-modified unix timestamp. It is a pure function: equal inputs
// always produce equal output. A zero timestamp still yields a stable value
// so that items the remote never stamps can be tracked.
func Fingerprint(remoteID string, updatedAt int64) string {
	if updatedAt == 0 {
		return "K" + remoteID
	}
	return "K" + remoteID + strconv.FormatInt(updatedAt, 10)
}
