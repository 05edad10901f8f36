package stun_test

import (
	"testing"

	"github.com/netpix/netpix/pkg/decode/stun"
	"github.com/stretchr/testify/assert"
)

func TestLooksLikeSTUNRejectsShortBuffer(t *testing.T) {
	assert.False(t, stun.LooksLikeSTUN([]byte{0x00, 0x01}))
}

func TestLooksLikeSTUNAcceptsBindingRequest(t *testing.T) {
	raw := make([]byte, 20)
	raw[0] = 0x00
	raw[1] = 0x01 // Binding Request
	raw[4] = 0x21
	raw[5] = 0x12
	raw[6] = 0xA4
	raw[7] = 0x42
	assert.True(t, stun.LooksLikeSTUN(raw))
}
