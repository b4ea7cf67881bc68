package idgen

import (
	uuid "github.com/satori/go.uuid"
	"github.com/teris-io/shortid"
)

var sid, _ = shortid.New(1, shortid.DefaultABC, 2342)

// GenerateID creates random shortid
func GenerateID() (id string, err error) {
	return sid.Generate()
}

// GenerateRunID creates a uuid suitable for identifying a scan run
func GenerateRunID() (id string, err error) {
	u, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
