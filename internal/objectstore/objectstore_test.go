package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixesForUser(t *testing.T) {
	p := PrefixesForUser("u-alice")
	assert.Equal(t, "users/u-alice/hot/", p.HotPrefix)
	assert.Equal(t, "users/u-alice/cold/", p.ColdPrefix)
}

func TestPrefixesForUserDistinctUsers(t *testing.T) {
	a := PrefixesForUser("u-alice")
	b := PrefixesForUser("u-bob")
	assert.NotEqual(t, a.HotPrefix, b.HotPrefix)
	assert.NotEqual(t, a.ColdPrefix, b.ColdPrefix)
}
