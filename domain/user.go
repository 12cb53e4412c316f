// Package domain contains core concepts of the pairing chat.
// No runtime, network, or UI logic should be added here.
package domain

import "strconv"

// UserID is the opaque and stable identity of a user.
// It is never shown to the partner.
type UserID int64

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}
