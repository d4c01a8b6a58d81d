package builtins

import (
	"math"
	"testing"
)

func assertNaNPrefix(t *testing.T, result []float64, n int) {
	t.Helper()
	for i := 0; i < n && i < len(result); i++ {
		if !math.IsNaN(result[i]) {
			t.Errorf("Expected NaN at index %d, got %f", i, result[i])
		}
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	result := calculateSMA([]float64{1, 2, 3, 4, 5}, 3)

	if len(result) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(result))
	}
	assertNaNPrefix(t, result, 2)

	expected := []float64{2, 3, 4}
	for i, want := range expected {
		if !almostEqual(result[i+2], want) {
			t.Errorf("Expected SMA %f at index %d, got %f", want, i+2, result[i+2])
		}
	}

	short := calculateSMA([]float64{1, 2}, 5)
	if len(short) != 2 || !math.IsNaN(short[1]) {
		t.Errorf("Expected all-NaN result for short input, got %v", short)
	}
}

func TestEMA(t *testing.T) {
	result := calculateEMA([]float64{10, 11, 12}, 3)
	// multiplier 0.5: 10, 10.5, 11.25
	expected := []float64{10, 10.5, 11.25}
	for i, want := range expected {
		if !almostEqual(result[i], want) {
			t.Errorf("Expected EMA %f at index %d, got %f", want, i, result[i])
		}
	}

	seeded := calculateEMA([]float64{math.NaN(), math.NaN(), 4, 6}, 3)
	if !math.IsNaN(seeded[1]) || seeded[2] != 4 || seeded[3] != 5 {
		t.Errorf("Expected EMA seeded at first value, got %v", seeded)
	}
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(100 + i)
	}

	result := calculateRSI(rising, 14)
	assertNaNPrefix(t, result, 14)
	if result[19] != 100 {
		t.Errorf("Expected RSI 100 for a strictly rising series, got %f", result[19])
	}

	mixed := []float64{44, 44.3, 44.1, 44.2, 44.5, 43.4, 44, 44.2, 45, 45.4, 45.8, 46.1, 45.9, 46.2, 46.5, 46.3}
	result = calculateRSI(mixed, 14)
	last := result[len(result)-1]
	if math.IsNaN(last) || last <= 0 || last >= 100 {
		t.Errorf("Expected RSI between 0 and 100, got %f", last)
	}
}

func TestMACD(t *testing.T) {
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 100 + float64(i)*0.5
	}

	macdLine, signalLine, histogram := calculateMACD(prices, 12, 26, 9)
	if len(macdLine) != 40 || len(signalLine) != 40 || len(histogram) != 40 {
		t.Fatalf("Expected 40 results for each line")
	}
	assertNaNPrefix(t, macdLine, 25)

	last := len(prices) - 1
	if macdLine[last] <= 0 {
		t.Errorf("Expected positive MACD in an uptrend, got %f", macdLine[last])
	}
	if !almostEqual(histogram[last], macdLine[last]-signalLine[last]) {
		t.Errorf("Expected histogram to equal macd - signal")
	}
}

func TestBollinger(t *testing.T) {
	prices := []float64{20, 21, 22, 21, 20, 21, 22, 23, 22, 21}
	upper, middle, lower := calculateBollinger(prices, 5, 2)

	assertNaNPrefix(t, upper, 4)
	for i := 4; i < len(prices); i++ {
		if !(lower[i] <= middle[i] && middle[i] <= upper[i]) {
			t.Errorf("Expected lower <= middle <= upper at %d, got %f %f %f", i, lower[i], middle[i], upper[i])
		}
	}

	flat := []float64{5, 5, 5}
	u, m, l := calculateBollinger(flat, 3, 2)
	if u[2] != 5 || m[2] != 5 || l[2] != 5 {
		t.Errorf("Expected collapsed bands for flat prices, got %f %f %f", u[2], m[2], l[2])
	}
}

func TestStochastic(t *testing.T) {
	highs := []float64{10, 11, 12, 13, 14, 15}
	lows := []float64{8, 9, 10, 11, 12, 13}
	closes := []float64{9, 10, 11, 12, 13, 15}

	k, d := calculateStochastic(highs, lows, closes, 3, 2)
	assertNaNPrefix(t, k, 2)
	if k[5] != 100 {
		t.Errorf("Expected %%K 100 when closing at the high, got %f", k[5])
	}
	assertNaNPrefix(t, d, 3)
	if math.IsNaN(d[5]) {
		t.Error("Expected %D to be defined on the last bar")
	}
}

func TestWilliamsR(t *testing.T) {
	highs := []float64{105, 106, 107, 108, 109, 108, 107, 106, 105, 104, 103, 102, 103, 104, 105}
	lows := []float64{95, 96, 97, 98, 99, 98, 97, 96, 95, 94, 93, 92, 93, 94, 95}
	closes := []float64{100, 101, 102, 103, 104, 103, 102, 101, 100, 99, 98, 97, 98, 99, 100}

	result := calculateWilliamsR(highs, lows, closes, 14)

	if len(result) != len(closes) {
		t.Errorf("Expected %d results, got %d", len(closes), len(result))
	}
	assertNaNPrefix(t, result, 13)

	lastValue := result[len(result)-1]
	if math.IsNaN(lastValue) || lastValue > 0 || lastValue < -100 {
		t.Errorf("Expected Williams %%R between -100 and 0, got %f", lastValue)
	}
}

func TestATR(t *testing.T) {
	highs := []float64{105, 110, 115, 108, 112, 109, 107, 111, 105, 103, 108, 102, 106, 104, 109}
	lows := []float64{95, 90, 85, 92, 88, 91, 93, 89, 95, 97, 92, 98, 94, 96, 91}
	closes := []float64{100, 95, 90, 95, 90, 95, 100, 95, 100, 99, 95, 100, 99, 100, 95}

	result := calculateATR(highs, lows, closes, 14)

	if len(result) != len(closes) {
		t.Errorf("Expected %d results, got %d", len(closes), len(result))
	}
	assertNaNPrefix(t, result, 14)

	lastValue := result[len(result)-1]
	if math.IsNaN(lastValue) || lastValue <= 0 {
		t.Errorf("Expected positive ATR value, got %f", lastValue)
	}
}

func TestCCI(t *testing.T) {
	highs := []float64{105, 106, 107, 108, 109, 108, 107, 106, 105, 104, 103, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	lows := []float64{95, 96, 97, 98, 99, 98, 97, 96, 95, 94, 93, 92, 93, 94, 95, 96, 97, 98, 99, 100}
	closes := []float64{100, 101, 102, 103, 104, 103, 102, 101, 100, 99, 98, 97, 98, 99, 100, 101, 102, 103, 104, 105}

	result := calculateCCI(highs, lows, closes, 20)
	assertNaNPrefix(t, result, 19)

	if math.IsNaN(result[19]) {
		t.Error("Expected CCI value on the last bar")
	}
}

func TestVWAP(t *testing.T) {
	highs := []float64{11, 12}
	lows := []float64{9, 10}
	closes := []float64{10, 11}
	volumes := []float64{100, 300}

	result := calculateVWAP(highs, lows, closes, volumes)
	// typical prices 10 and 11, weighted 1:3
	if !almostEqual(result[1], 10.75) {
		t.Errorf("Expected VWAP 10.75, got %f", result[1])
	}

	empty := calculateVWAP([]float64{1}, []float64{1}, []float64{1}, []float64{0})
	if !math.IsNaN(empty[0]) {
		t.Errorf("Expected NaN without volume, got %f", empty[0])
	}
}

func TestMFI(t *testing.T) {
	highs := []float64{10, 11, 12, 13, 14}
	lows := []float64{8, 9, 10, 11, 12}
	closes := []float64{9, 10, 11, 12, 13}
	volumes := []float64{100, 100, 100, 100, 100}

	result := calculateMFI(highs, lows, closes, volumes, 3)
	assertNaNPrefix(t, result, 3)
	if result[4] != 100 {
		t.Errorf("Expected MFI 100 with only positive flow, got %f", result[4])
	}
}

func TestStdDevAndROC(t *testing.T) {
	std := calculateStdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	if !almostEqual(std[7], 2) {
		t.Errorf("Expected standard deviation 2, got %f", std[7])
	}

	roc := calculateROC([]float64{100, 105, 110}, 2)
	assertNaNPrefix(t, roc, 2)
	if !almostEqual(roc[2], 10) {
		t.Errorf("Expected ROC 10, got %f", roc[2])
	}
}

func TestOBV(t *testing.T) {
	result := calculateOBV([]float64{10, 11, 10, 10}, []float64{5, 7, 3, 9})
	expected := []float64{0, 7, 4, 4}
	for i, want := range expected {
		if result[i] != want {
			t.Errorf("Expected OBV %f at index %d, got %f", want, i, result[i])
		}
	}
}

func TestHighestLowest(t *testing.T) {
	prices := []float64{3, 1, 4, 1, 5, 9, 2}
	highest := calculateHighest(prices, 3)
	lowest := calculateLowest(prices, 3)

	assertNaNPrefix(t, highest, 2)
	if highest[6] != 9 || lowest[6] != 2 {
		t.Errorf("Expected highest 9 and lowest 2, got %f and %f", highest[6], lowest[6])
	}
	if highest[2] != 4 || lowest[2] != 1 {
		t.Errorf("Expected highest 4 and lowest 1 at index 2, got %f and %f", highest[2], lowest[2])
	}
}

func TestCrossing(t *testing.T) {
	if !crossedOver([]float64{1, 3}, []float64{2, 2}) {
		t.Error("Expected crossover")
	}
	if crossedOver([]float64{3, 4}, []float64{2, 2}) {
		t.Error("Expected no crossover when already above")
	}
	if !crossedUnder([]float64{3, 1}, []float64{2, 2}) {
		t.Error("Expected crossunder")
	}
	if crossedUnder([]float64{1}, []float64{2}) {
		t.Error("Expected no crossunder with a single bar")
	}
}

func TestADX(t *testing.T) {
	n := 40
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		highs[i] = base + 1
		lows[i] = base - 1
		closes[i] = base
	}

	adx, plusDI, minusDI := calculateADX(highs, lows, closes, 14)
	assertNaNPrefix(t, adx, 27)

	last := n - 1
	if math.IsNaN(adx[last]) || adx[last] <= 0 {
		t.Errorf("Expected positive ADX in a trend, got %f", adx[last])
	}
	if plusDI[last] <= minusDI[last] {
		t.Errorf("Expected +DI above -DI in an uptrend, got %f and %f", plusDI[last], minusDI[last])
	}
}

func TestChannels(t *testing.T) {
	highs := []float64{10, 12, 11, 13, 12}
	lows := []float64{8, 9, 7, 10, 9}
	closes := []float64{9, 11, 10, 12, 11}

	upper, middle, lower := calculateDonchianChannels(highs, lows, 3)
	if upper[4] != 13 || lower[4] != 7 || middle[4] != 10 {
		t.Errorf("Expected donchian 13/10/7, got %f/%f/%f", upper[4], middle[4], lower[4])
	}

	ku, km, kl := calculateKeltnerChannels(highs, lows, closes, 3, 2)
	if math.IsNaN(ku[4]) || !(kl[4] < km[4] && km[4] < ku[4]) {
		t.Errorf("Expected ordered keltner bands, got %f %f %f", ku[4], km[4], kl[4])
	}
}
