package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"forex_bot/internal/models"
)

func TestRSI(t *testing.T) {
	// данных меньше period+1 — нейтральные 50
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14))

	// монотонный рост: убытков нет, RSI = 100
	up := make([]float64, 0, 20)
	for i := 0; i < 20; i++ {
		up = append(up, 100+float64(i))
	}
	assert.Equal(t, 100.0, RSI(up, 14))

	// чередование +1/-1 в равных долях держит RSI у 50
	alt := []float64{10, 11, 10, 11, 10, 11, 10, 11, 10, 11, 10}
	assert.InDelta(t, 50.0, RSI(alt, 10), 0.01)
}

func TestZScore(t *testing.T) {
	assert.Equal(t, 0.0, ZScore([]float64{1, 2}, 5))

	// константный ряд: stdev == 0
	flat := []float64{5, 5, 5, 5, 5}
	assert.Equal(t, 0.0, ZScore(flat, 5))

	// последняя точка сильно выше среднего — положительный скор
	closes := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 3}
	z := ZScore(closes, 10)
	assert.Greater(t, z, 2.0)

	// симметрично вниз
	closes[len(closes)-1] = -1
	assert.Less(t, ZScore(closes, 10), -2.0)
}

func TestATR(t *testing.T) {
	assert.Equal(t, 0.0, ATR(nil, 14))

	// свечи с постоянным диапазоном high-low = 2 без гэпов
	candles := make([]models.Candle, 0, 16)
	for i := 0; i < 16; i++ {
		candles = append(candles, models.Candle{
			Open: 100, High: 101, Low: 99, Close: 100,
		})
	}
	assert.InDelta(t, 2.0, ATR(candles, 14), 1e-9)

	assert.Equal(t, 0.0, ATR(candles, 0))
	assert.Equal(t, 0.0, ATR(candles[:10], 14))
}
