package geoip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoIp(t *testing.T) {
	path := FindDbPath()
	if path == "" {
		t.Skip("Failed to find GeoIP database.")
	}

	db, err := NewGeoIpDb("")
	require.Nil(t, err)
	defer db.Close()

	result, err := db.LookupString("149.56.128.130")
	require.Nil(t, err)
	assert.Equal(t, "149.56.128.130", result.Ip)
	assert.NotEqual(t, "", result.CountryCode2)

	result, err = db.LookupString("2001:4860:4860::8888")
	require.Nil(t, err)
	assert.Equal(t, "", result.Ip)
	assert.Equal(t, "2001:4860:4860::8888", result.Ip6)

	_, err = db.LookupString("not-an-address")
	assert.NotNil(t, err)
}

func TestOpenMissing(t *testing.T) {
	_, err := NewGeoIpDb("/nonexistent/GeoLite2-City.mmdb")
	assert.NotNil(t, err)

	_, err = NewGeoIpDb("/nonexistent/GeoLite2-City.mmdb.gz")
	assert.NotNil(t, err)
}
