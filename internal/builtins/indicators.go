package builtins

import (
	"math"
)

// All calculations take series ordered oldest to newest and return a slice of
// the same length. Bars without enough history hold NaN, which scripts read
// as null.

func nanSlice(length int) []float64 {
	result := make([]float64, length)
	for i := range result {
		result[i] = math.NaN()
	}
	return result
}

// calculateSMA calculates Simple Moving Average
func calculateSMA(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 || length < period {
		return result
	}

	for i := period - 1; i < length; i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		result[i] = sum / float64(period)
	}

	return result
}

// calculateEMA calculates Exponential Moving Average. The average is seeded
// with the first non-NaN price.
func calculateEMA(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	multiplier := 2.0 / (float64(period) + 1.0)
	seeded := false

	for i := 0; i < length; i++ {
		price := prices[i]
		if math.IsNaN(price) {
			continue
		}
		if !seeded {
			result[i] = price
			seeded = true
			continue
		}
		prev := result[i-1]
		if math.IsNaN(prev) {
			prev = price
		}
		result[i] = (price * multiplier) + (prev * (1.0 - multiplier))
	}

	return result
}

// calculateRSI calculates Relative Strength Index with Wilder smoothing
func calculateRSI(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 || length < period+1 {
		return result
	}

	gains := make([]float64, length)
	losses := make([]float64, length)

	for i := 1; i < length; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period; i < length; i++ {
		if i > period {
			avgGain = ((avgGain * float64(period-1)) + gains[i]) / float64(period)
			avgLoss = ((avgLoss * float64(period-1)) + losses[i]) / float64(period)
		}

		if avgLoss == 0 {
			result[i] = 100
		} else {
			rs := avgGain / avgLoss
			result[i] = 100 - (100 / (1 + rs))
		}
	}

	return result
}

// calculateMACD calculates MACD line, signal line and histogram
func calculateMACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) ([]float64, []float64, []float64) {
	length := len(prices)
	fastEMA := calculateEMA(prices, fastPeriod)
	slowEMA := calculateEMA(prices, slowPeriod)

	macdLine := nanSlice(length)
	for i := slowPeriod - 1; i < length; i++ {
		if i >= 0 {
			macdLine[i] = fastEMA[i] - slowEMA[i]
		}
	}

	signalLine := calculateEMA(macdLine, signalPeriod)

	histogram := nanSlice(length)
	for i := 0; i < length; i++ {
		if !math.IsNaN(macdLine[i]) && !math.IsNaN(signalLine[i]) {
			histogram[i] = macdLine[i] - signalLine[i]
		}
	}

	return macdLine, signalLine, histogram
}

// calculateBollinger calculates Bollinger Bands
func calculateBollinger(prices []float64, period int, multiplier float64) ([]float64, []float64, []float64) {
	length := len(prices)
	middle := calculateSMA(prices, period)
	stdDev := calculateStdDev(prices, period)
	upper := nanSlice(length)
	lower := nanSlice(length)

	for i := 0; i < length; i++ {
		if math.IsNaN(middle[i]) {
			continue
		}
		upper[i] = middle[i] + (multiplier * stdDev[i])
		lower[i] = middle[i] - (multiplier * stdDev[i])
	}

	return upper, middle, lower
}

// calculateStochastic calculates the Stochastic Oscillator %K and %D
func calculateStochastic(high, low, close []float64, kPeriod, dPeriod int) ([]float64, []float64) {
	length := len(close)
	k := nanSlice(length)

	for i := kPeriod - 1; i < length; i++ {
		if i < 0 {
			continue
		}
		highestHigh, lowestLow := windowRange(high, low, i, kPeriod)

		if highestHigh == lowestLow {
			k[i] = 50
		} else {
			k[i] = ((close[i] - lowestLow) / (highestHigh - lowestLow)) * 100
		}
	}

	d := nanSlice(length)
	for i := 0; i < length; i++ {
		if i < dPeriod-1 || dPeriod <= 0 {
			continue
		}
		sum := 0.0
		valid := true
		for j := i - dPeriod + 1; j <= i; j++ {
			if math.IsNaN(k[j]) {
				valid = false
				break
			}
			sum += k[j]
		}
		if valid {
			d[i] = sum / float64(dPeriod)
		}
	}

	return k, d
}

// windowRange returns the highest high and lowest low of the period ending at i
func windowRange(high, low []float64, i, period int) (float64, float64) {
	highestHigh := math.Inf(-1)
	lowestLow := math.Inf(1)
	for j := i - period + 1; j <= i; j++ {
		if high[j] > highestHigh {
			highestHigh = high[j]
		}
		if low[j] < lowestLow {
			lowestLow = low[j]
		}
	}
	return highestHigh, lowestLow
}

// calculateHighest calculates rolling highest values
func calculateHighest(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	for i := period - 1; i < length; i++ {
		highest := math.Inf(-1)
		for j := i - period + 1; j <= i; j++ {
			if prices[j] > highest {
				highest = prices[j]
			}
		}
		result[i] = highest
	}

	return result
}

// calculateLowest calculates rolling lowest values
func calculateLowest(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	for i := period - 1; i < length; i++ {
		lowest := math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			if prices[j] < lowest {
				lowest = prices[j]
			}
		}
		result[i] = lowest
	}

	return result
}

// crossedOver reports whether a crossed above b on the newest bar
func crossedOver(a, b []float64) bool {
	n, m := len(a), len(b)
	if n < 2 || m < 2 {
		return false
	}
	prevA, currA := a[n-2], a[n-1]
	prevB, currB := b[m-2], b[m-1]
	return prevA <= prevB && currA > currB
}

// crossedUnder reports whether a crossed below b on the newest bar
func crossedUnder(a, b []float64) bool {
	n, m := len(a), len(b)
	if n < 2 || m < 2 {
		return false
	}
	prevA, currA := a[n-2], a[n-1]
	prevB, currB := b[m-2], b[m-1]
	return prevA >= prevB && currA < currB
}

// calculateWilliamsR calculates Williams %R oscillator
func calculateWilliamsR(high, low, close []float64, period int) []float64 {
	length := len(close)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	for i := period - 1; i < length; i++ {
		highestHigh, lowestLow := windowRange(high, low, i, period)
		if highestHigh == lowestLow {
			result[i] = -50
		} else {
			result[i] = ((highestHigh - close[i]) / (highestHigh - lowestLow)) * -100
		}
	}

	return result
}

// calculateATR calculates Average True Range
func calculateATR(high, low, close []float64, period int) []float64 {
	length := len(close)
	result := nanSlice(length)
	if period <= 0 || length <= period {
		return result
	}

	trueRanges := make([]float64, length)
	for i := 1; i < length; i++ {
		tr1 := high[i] - low[i]
		tr2 := math.Abs(high[i] - close[i-1])
		tr3 := math.Abs(low[i] - close[i-1])
		trueRanges[i] = math.Max(tr1, math.Max(tr2, tr3))
	}

	sum := 0.0
	for j := 1; j <= period; j++ {
		sum += trueRanges[j]
	}
	result[period] = sum / float64(period)

	for i := period + 1; i < length; i++ {
		result[i] = ((result[i-1] * float64(period-1)) + trueRanges[i]) / float64(period)
	}

	return result
}

// calculateCCI calculates Commodity Channel Index
func calculateCCI(high, low, close []float64, period int) []float64 {
	length := len(close)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	typical := make([]float64, length)
	for i := range typical {
		typical[i] = (high[i] + low[i] + close[i]) / 3
	}

	for i := period - 1; i < length; i++ {
		smaTP := 0.0
		for j := i - period + 1; j <= i; j++ {
			smaTP += typical[j]
		}
		smaTP /= float64(period)

		meanDev := 0.0
		for j := i - period + 1; j <= i; j++ {
			meanDev += math.Abs(typical[j] - smaTP)
		}
		meanDev /= float64(period)

		if meanDev == 0 {
			result[i] = 0
		} else {
			result[i] = (typical[i] - smaTP) / (0.015 * meanDev)
		}
	}

	return result
}

// calculateVWAP calculates cumulative Volume Weighted Average Price
func calculateVWAP(high, low, close, volume []float64) []float64 {
	length := len(close)
	result := nanSlice(length)

	cumulativeTPV := 0.0
	cumulativeVolume := 0.0

	for i := 0; i < length; i++ {
		typicalPrice := (high[i] + low[i] + close[i]) / 3
		cumulativeTPV += typicalPrice * volume[i]
		cumulativeVolume += volume[i]

		if cumulativeVolume != 0 {
			result[i] = cumulativeTPV / cumulativeVolume
		}
	}

	return result
}

// calculateMFI calculates Money Flow Index (volume-weighted RSI)
func calculateMFI(high, low, close, volume []float64, period int) []float64 {
	length := len(close)
	result := nanSlice(length)
	if period <= 0 || length < period+1 {
		return result
	}

	typicalPrices := make([]float64, length)
	moneyFlows := make([]float64, length)

	for i := 0; i < length; i++ {
		typicalPrices[i] = (high[i] + low[i] + close[i]) / 3
		if i == 0 {
			continue
		}

		rawMoneyFlow := typicalPrices[i] * volume[i]
		switch {
		case typicalPrices[i] > typicalPrices[i-1]:
			moneyFlows[i] = rawMoneyFlow
		case typicalPrices[i] < typicalPrices[i-1]:
			moneyFlows[i] = -rawMoneyFlow
		}
	}

	for i := period; i < length; i++ {
		positiveFlow := 0.0
		negativeFlow := 0.0

		for j := i - period + 1; j <= i; j++ {
			if moneyFlows[j] > 0 {
				positiveFlow += moneyFlows[j]
			} else if moneyFlows[j] < 0 {
				negativeFlow += -moneyFlows[j]
			}
		}

		if negativeFlow == 0 {
			result[i] = 100
		} else {
			moneyRatio := positiveFlow / negativeFlow
			result[i] = 100 - (100 / (1 + moneyRatio))
		}
	}

	return result
}

// calculateStdDev calculates rolling population standard deviation
func calculateStdDev(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	for i := period - 1; i < length; i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		mean := sum / float64(period)

		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			variance += math.Pow(prices[j]-mean, 2)
		}
		variance /= float64(period)

		result[i] = math.Sqrt(variance)
	}

	return result
}

// calculateROC calculates Rate of Change in percent
func calculateROC(prices []float64, period int) []float64 {
	length := len(prices)
	result := nanSlice(length)
	if period <= 0 {
		return result
	}

	for i := period; i < length; i++ {
		pastPrice := prices[i-period]
		if pastPrice != 0 {
			result[i] = ((prices[i] - pastPrice) / pastPrice) * 100
		}
	}

	return result
}

// calculateOBV calculates On-Balance Volume
func calculateOBV(close, volume []float64) []float64 {
	length := len(close)
	if length == 0 {
		return nil
	}

	result := make([]float64, length)
	for i := 1; i < length; i++ {
		switch {
		case close[i] > close[i-1]:
			result[i] = result[i-1] + volume[i]
		case close[i] < close[i-1]:
			result[i] = result[i-1] - volume[i]
		default:
			result[i] = result[i-1]
		}
	}

	return result
}

// calculateADX calculates Average Directional Index with +DI and -DI
func calculateADX(high, low, close []float64, period int) ([]float64, []float64, []float64) {
	length := len(close)
	adx := nanSlice(length)
	plusDI := nanSlice(length)
	minusDI := nanSlice(length)
	if period <= 0 || length < period+1 {
		return adx, plusDI, minusDI
	}

	tr := make([]float64, length)
	plusDM := make([]float64, length)
	minusDM := make([]float64, length)

	for i := 1; i < length; i++ {
		tr[i] = math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))

		hDiff := high[i] - high[i-1]
		lDiff := low[i-1] - low[i]
		if hDiff > lDiff && hDiff > 0 {
			plusDM[i] = hDiff
		}
		if lDiff > hDiff && lDiff > 0 {
			minusDM[i] = lDiff
		}
	}

	atr := make([]float64, length)
	smoothPlusDM := make([]float64, length)
	smoothMinusDM := make([]float64, length)

	for i := 1; i <= period; i++ {
		atr[period] += tr[i]
		smoothPlusDM[period] += plusDM[i]
		smoothMinusDM[period] += minusDM[i]
	}
	for i := period + 1; i < length; i++ {
		atr[i] = atr[i-1] - (atr[i-1] / float64(period)) + tr[i]
		smoothPlusDM[i] = smoothPlusDM[i-1] - (smoothPlusDM[i-1] / float64(period)) + plusDM[i]
		smoothMinusDM[i] = smoothMinusDM[i-1] - (smoothMinusDM[i-1] / float64(period)) + minusDM[i]
	}

	dx := make([]float64, length)
	for i := period; i < length; i++ {
		if atr[i] == 0 {
			plusDI[i], minusDI[i] = 0, 0
			continue
		}
		plusDI[i] = (smoothPlusDM[i] / atr[i]) * 100
		minusDI[i] = (smoothMinusDM[i] / atr[i]) * 100

		if diSum := plusDI[i] + minusDI[i]; diSum != 0 {
			dx[i] = (math.Abs(plusDI[i]-minusDI[i]) / diSum) * 100
		}
	}

	first := period*2 - 1
	if first >= length {
		return adx, plusDI, minusDI
	}

	sum := 0.0
	for i := period; i <= first; i++ {
		sum += dx[i]
	}
	adx[first] = sum / float64(period)

	for i := first + 1; i < length; i++ {
		adx[i] = ((adx[i-1] * float64(period-1)) + dx[i]) / float64(period)
	}

	return adx, plusDI, minusDI
}

// calculateKeltnerChannels calculates Keltner Channels around an EMA
func calculateKeltnerChannels(high, low, close []float64, period int, multiplier float64) ([]float64, []float64, []float64) {
	length := len(close)
	middle := calculateEMA(close, period)
	atr := calculateATR(high, low, close, period)
	upper := nanSlice(length)
	lower := nanSlice(length)

	for i := 0; i < length; i++ {
		if math.IsNaN(middle[i]) || math.IsNaN(atr[i]) {
			continue
		}
		upper[i] = middle[i] + (multiplier * atr[i])
		lower[i] = middle[i] - (multiplier * atr[i])
	}

	return upper, middle, lower
}

// calculateDonchianChannels calculates Donchian Channels
func calculateDonchianChannels(high, low []float64, period int) ([]float64, []float64, []float64) {
	length := len(high)
	upper := nanSlice(length)
	middle := nanSlice(length)
	lower := nanSlice(length)
	if period <= 0 {
		return upper, middle, lower
	}

	for i := period - 1; i < length; i++ {
		maxHigh, minLow := windowRange(high, low, i, period)
		upper[i] = maxHigh
		lower[i] = minLow
		middle[i] = (maxHigh + minLow) / 2
	}

	return upper, middle, lower
}
