package quick

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildParseRoundTrip(t *testing.T) {
	text := Build("PRIV", "10.8.0.12/32", "0.0.0.0/0, ::/0", "SRVPUB", "vpn.example.com:51820", "1.1.1.1")

	f := Parse(text)
	assert.Equal(t, "PRIV", f.PrivateKey)
	assert.Equal(t, "10.8.0.12/32", f.Address)
	assert.Equal(t, "0.0.0.0/0, ::/0", f.AllowedIPs)
	assert.Equal(t, "1.1.1.1", f.DNS)
	assert.Equal(t, "vpn.example.com:51820", f.Endpoint)
	assert.Equal(t, "SRVPUB", f.Raw["peer.publickey"])
	assert.Equal(t, "25", f.Raw["peer.persistentkeepalive"])
}

func TestParseTolerant(t *testing.T) {
	text := "# комментарий\n\n[Interface]\nPrivateKey=abc\n  Address = 10.0.0.5/32  \nмусор без знака равно\n= пустой ключ\n[Peer]\nEndpoint = host:51820\n"
	f := Parse(text)
	assert.Equal(t, "abc", f.PrivateKey)
	assert.Equal(t, "10.0.0.5/32", f.Address)
	assert.Equal(t, "host:51820", f.Endpoint)
	assert.Empty(t, f.DNS)
}

func TestParseSectionless(t *testing.T) {
	// пары до первой секции читаются по голому ключу
	f := Parse("PrivateKey = bare\nAddress = 10.0.0.9/32")
	assert.Equal(t, "bare", f.PrivateKey)
	assert.Equal(t, "10.0.0.9/32", f.Address)
}

func TestParseEmpty(t *testing.T) {
	f := Parse("")
	assert.Empty(t, f.PrivateKey)
	assert.Empty(t, f.Raw)
}
