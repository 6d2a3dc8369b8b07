package peers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"veil/internal/models"
	"veil/internal/wgeasy"

	"github.com/stretchr/testify/assert"
)

func TestToPeerOutScrubsPrivateKey(t *testing.T) {
	p := &models.VpnPeer{ID: 1, UserID: 7, WGPrivateKey: "SECRET", WGPublicKey: "PUB", WGIP: "10.8.0.5/32"}

	out := toPeerOut(p, false)
	assert.Nil(t, out.WGPrivateKey)

	out = toPeerOut(p, true)
	if assert.NotNil(t, out.WGPrivateKey) {
		assert.Equal(t, "SECRET", *out.WGPrivateKey)
	}

	// пустой ключ не превращается в указатель на пустую строку
	p.WGPrivateKey = ""
	out = toPeerOut(p, true)
	assert.Nil(t, out.WGPrivateKey)
}

func TestWriteServiceErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotAllowed, http.StatusForbidden},
		{ErrSubscriptionRequired, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrDecrypt, http.StatusInternalServerError},
		{&ValidationError{Msg: "bad input"}, http.StatusBadRequest},
		{&wgeasy.UpstreamError{Status: 500, Body: "x"}, http.StatusBadGateway},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, "error %v", tc.err)
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}
