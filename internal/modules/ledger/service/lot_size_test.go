package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestLotSize(t *testing.T) {
	// металлы: стоп 100 пипсов по 1.0 за пипс
	assert.InDelta(t, 0.02, SuggestLotSize("XAUUSD", 10000, 2.0), 1e-9)
	// форекс-мажоры: стоп 50 пипсов по 0.1
	assert.InDelta(t, 0.4, SuggestLotSize("EURUSD", 10000, 2.0), 1e-9)

	// пол 0.01 на копеечном капитале
	assert.Equal(t, 0.01, SuggestLotSize("XAUUSD", 100, 2.0))
	// нет капитала — минимальный лот, не ноль
	assert.Equal(t, 0.01, SuggestLotSize("EURUSD", 0, 2.0))
	// нулевой риск откатывается на дефолтные 2%
	assert.InDelta(t, 0.4, SuggestLotSize("EURUSD", 10000, 0), 1e-9)
}
