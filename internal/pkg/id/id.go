package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string used for user ids and OTP record ids.
// ULIDs sort by creation time, so OTP records under one key list oldest first.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
