package helper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormTF(t *testing.T) {
	assert.Equal(t, "M15", NormTF("15m"))
	assert.Equal(t, "M15", NormTF(" m15 "))
	assert.Equal(t, "H1", NormTF("60m"))
	assert.Equal(t, "H1", NormTF("1h"))
	assert.Equal(t, "D1", NormTF("1d"))
	assert.Equal(t, "W1", NormTF("w1")) // неизвестное — как есть, в верхнем регистре
}

func TestRoundLot(t *testing.T) {
	assert.InDelta(t, 0.12, RoundLot(0.1234, 0.01), 1e-9)
	assert.InDelta(t, 0.1, RoundLot(0.1, 0.01), 1e-9)
	assert.Equal(t, 0.1234, RoundLot(0.1234, 0))
}

func TestTaskKeyParts(t *testing.T) {
	sid, pair, tf, stg, ok := TaskKeyParts("abc-123_XAUUSD_M15_gold_buy_dip")
	assert.True(t, ok)
	assert.Equal(t, "abc-123", sid)
	assert.Equal(t, "XAUUSD", pair)
	assert.Equal(t, "M15", tf)
	assert.Equal(t, "gold_buy_dip", stg)

	_, _, _, _, ok = TaskKeyParts("not-a-key")
	assert.False(t, ok)
	_, _, _, _, ok = TaskKeyParts("a_b_c_")
	assert.False(t, ok)
}
