package builtins

import (
	"math"

	"github.com/arijanluiken/tradescript/internal/interpreter"
)

func (r *Registry) registerIndicators() {
	r.register("sma", CategoryIndicator, "sma(source, period)", singleSource("sma", calculateSMA))
	r.register("ema", CategoryIndicator, "ema(source, period)", singleSource("ema", calculateEMA))
	r.register("rsi", CategoryIndicator, "rsi(source, period=14)", singleSourceDefault("rsi", 14, calculateRSI))
	r.register("stddev", CategoryIndicator, "stddev(source, period)", singleSource("stddev", calculateStdDev))
	r.register("roc", CategoryIndicator, "roc(source, period)", singleSource("roc", calculateROC))
	r.register("highest", CategoryIndicator, "highest(source, period)", singleSource("highest", calculateHighest))
	r.register("lowest", CategoryIndicator, "lowest(source, period)", singleSource("lowest", calculateLowest))

	r.register("macd", CategoryIndicator, "macd(source, fast=12, slow=26, signal=9)", builtinMACD)
	r.register("bollinger", CategoryIndicator, "bollinger(source, period=20, multiplier=2)", builtinBollinger)
	r.register("stochastic", CategoryIndicator, "stochastic(high, low, close, k=14, d=3)", builtinStochastic)
	r.register("williams_r", CategoryIndicator, "williams_r(high, low, close, period=14)", hlcPeriod("williams_r", 14, calculateWilliamsR))
	r.register("atr", CategoryIndicator, "atr(high, low, close, period=14)", hlcPeriod("atr", 14, calculateATR))
	r.register("cci", CategoryIndicator, "cci(high, low, close, period=20)", hlcPeriod("cci", 20, calculateCCI))
	r.register("adx", CategoryIndicator, "adx(high, low, close, period=14)", builtinADX)
	r.register("keltner", CategoryIndicator, "keltner(high, low, close, period=20, multiplier=2)", builtinKeltner)
	r.register("donchian", CategoryIndicator, "donchian(high, low, period=20)", builtinDonchian)
	r.register("vwap", CategoryIndicator, "vwap(high, low, close, volume)", builtinVWAP)
	r.register("mfi", CategoryIndicator, "mfi(high, low, close, volume, period=14)", builtinMFI)
	r.register("obv", CategoryIndicator, "obv(close, volume)", builtinOBV)
	r.register("crossover", CategoryIndicator, "crossover(a, b)", crossing("crossover", crossedOver))
	r.register("crossunder", CategoryIndicator, "crossunder(a, b)", crossing("crossunder", crossedUnder))
}

// singleSource wraps a source+period calculation with a required period
func singleSource(name string, calc func([]float64, int) []float64) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		if err := checkArity(name, args, 2, 2); err != nil {
			return nil, err
		}
		return sourcePeriod(name, args, 0, calc)
	}
}

func singleSourceDefault(name string, def int, calc func([]float64, int) []float64) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		if err := checkArity(name, args, 1, 2); err != nil {
			return nil, err
		}
		return sourcePeriod(name, args, def, calc)
	}
}

func sourcePeriod(name string, args []interpreter.Value, def int, calc func([]float64, int) []float64) (interpreter.Value, error) {
	prices, err := seriesArg(name, args, 0)
	if err != nil {
		return nil, err
	}
	period, err := periodArg(name, args, 1, def)
	if err != nil {
		return nil, err
	}
	return series(calc(prices, period)), nil
}

func hlcPeriod(name string, def int, calc func(high, low, close []float64, period int) []float64) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		if err := checkArity(name, args, 3, 4); err != nil {
			return nil, err
		}
		hlc, err := seriesArgs(name, args, 0, 3)
		if err != nil {
			return nil, err
		}
		period, err := periodArg(name, args, 3, def)
		if err != nil {
			return nil, err
		}
		return series(calc(hlc[0], hlc[1], hlc[2], period)), nil
	}
}

func builtinMACD(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("macd", args, 1, 4); err != nil {
		return nil, err
	}
	prices, err := seriesArg("macd", args, 0)
	if err != nil {
		return nil, err
	}
	fast, err := periodArg("macd", args, 1, 12)
	if err != nil {
		return nil, err
	}
	slow, err := periodArg("macd", args, 2, 26)
	if err != nil {
		return nil, err
	}
	signal, err := periodArg("macd", args, 3, 9)
	if err != nil {
		return nil, err
	}

	macdLine, signalLine, histogram := calculateMACD(prices, fast, slow, signal)
	return seriesRecord(
		field{"macd", macdLine},
		field{"signal", signalLine},
		field{"histogram", histogram},
	), nil
}

func builtinBollinger(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("bollinger", args, 1, 3); err != nil {
		return nil, err
	}
	prices, err := seriesArg("bollinger", args, 0)
	if err != nil {
		return nil, err
	}
	period, err := periodArg("bollinger", args, 1, 20)
	if err != nil {
		return nil, err
	}
	multiplier, err := floatArg("bollinger", args, 2, 2)
	if err != nil {
		return nil, err
	}

	upper, middle, lower := calculateBollinger(prices, period, multiplier)
	return seriesRecord(
		field{"upper", upper},
		field{"middle", middle},
		field{"lower", lower},
	), nil
}

func builtinStochastic(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("stochastic", args, 3, 5); err != nil {
		return nil, err
	}
	hlc, err := seriesArgs("stochastic", args, 0, 3)
	if err != nil {
		return nil, err
	}
	kPeriod, err := periodArg("stochastic", args, 3, 14)
	if err != nil {
		return nil, err
	}
	dPeriod, err := periodArg("stochastic", args, 4, 3)
	if err != nil {
		return nil, err
	}

	k, d := calculateStochastic(hlc[0], hlc[1], hlc[2], kPeriod, dPeriod)
	return seriesRecord(field{"k", k}, field{"d", d}), nil
}

func builtinADX(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("adx", args, 3, 4); err != nil {
		return nil, err
	}
	hlc, err := seriesArgs("adx", args, 0, 3)
	if err != nil {
		return nil, err
	}
	period, err := periodArg("adx", args, 3, 14)
	if err != nil {
		return nil, err
	}

	adx, plusDI, minusDI := calculateADX(hlc[0], hlc[1], hlc[2], period)
	return seriesRecord(
		field{"adx", adx},
		field{"plus_di", plusDI},
		field{"minus_di", minusDI},
	), nil
}

func builtinKeltner(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("keltner", args, 3, 5); err != nil {
		return nil, err
	}
	hlc, err := seriesArgs("keltner", args, 0, 3)
	if err != nil {
		return nil, err
	}
	period, err := periodArg("keltner", args, 3, 20)
	if err != nil {
		return nil, err
	}
	multiplier, err := floatArg("keltner", args, 4, 2)
	if err != nil {
		return nil, err
	}

	upper, middle, lower := calculateKeltnerChannels(hlc[0], hlc[1], hlc[2], period, multiplier)
	return seriesRecord(
		field{"upper", upper},
		field{"middle", middle},
		field{"lower", lower},
	), nil
}

func builtinDonchian(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("donchian", args, 2, 3); err != nil {
		return nil, err
	}
	hl, err := seriesArgs("donchian", args, 0, 2)
	if err != nil {
		return nil, err
	}
	period, err := periodArg("donchian", args, 2, 20)
	if err != nil {
		return nil, err
	}

	upper, middle, lower := calculateDonchianChannels(hl[0], hl[1], period)
	return seriesRecord(
		field{"upper", upper},
		field{"middle", middle},
		field{"lower", lower},
	), nil
}

func builtinVWAP(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("vwap", args, 4, 4); err != nil {
		return nil, err
	}
	hlcv, err := seriesArgs("vwap", args, 0, 4)
	if err != nil {
		return nil, err
	}
	return series(calculateVWAP(hlcv[0], hlcv[1], hlcv[2], hlcv[3])), nil
}

func builtinMFI(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("mfi", args, 4, 5); err != nil {
		return nil, err
	}
	hlcv, err := seriesArgs("mfi", args, 0, 4)
	if err != nil {
		return nil, err
	}
	period, err := periodArg("mfi", args, 4, 14)
	if err != nil {
		return nil, err
	}
	return series(calculateMFI(hlcv[0], hlcv[1], hlcv[2], hlcv[3], period)), nil
}

func builtinOBV(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
	if err := checkArity("obv", args, 2, 2); err != nil {
		return nil, err
	}
	cv, err := seriesArgs("obv", args, 0, 2)
	if err != nil {
		return nil, err
	}
	return series(calculateOBV(cv[0], cv[1])), nil
}

// crossing compares the two newest bars of a and b. Either side may be a
// number, which acts as a constant level.
func crossing(name string, crossed func(a, b []float64) bool) interpreter.BuiltinFunc {
	return func(call *interpreter.Call, args []interpreter.Value) (interpreter.Value, error) {
		if err := checkArity(name, args, 2, 2); err != nil {
			return nil, err
		}

		sides := make([][]float64, 2)
		for i := range sides {
			if n, ok := args[i].(interpreter.Number); ok {
				sides[i] = []float64{float64(n), float64(n)}
				continue
			}
			s, err := seriesArg(name, args, i)
			if err != nil {
				return nil, err
			}
			sides[i] = s
		}

		for _, s := range sides {
			if len(s) >= 2 && (math.IsNaN(s[len(s)-1]) || math.IsNaN(s[len(s)-2])) {
				return interpreter.Boolean(false), nil
			}
		}
		return interpreter.Boolean(crossed(sides[0], sides[1])), nil
	}
}
