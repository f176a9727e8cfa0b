package indicator

import (
	"math"

	"trading-alerts/internal/model"
)

const outValue = "value"

func builtinSpecs() []Spec {
	return []Spec{
		{
			Name:        "RSI",
			Description: "Relative Strength Index, overbought/oversold momentum",
			Category:    "momentum",
			Params:      []ParamSpec{{Name: "period", Type: ParamInt, Default: 14, Min: 2, Max: 50}},
			Outputs:     []string{outValue},
			Compute:     computeRSI,
			Warmup:      func(p Params) int { return p.Int("period") + 1 },
		},
		{
			Name:        "SMA",
			Description: "Simple Moving Average",
			Category:    "trend",
			Params:      []ParamSpec{{Name: "period", Type: ParamInt, Default: 20, Min: 2, Max: 200}},
			Outputs:     []string{outValue},
			Compute:     computeSMA,
			Warmup:      func(p Params) int { return p.Int("period") },
		},
		{
			Name:        "EMA",
			Description: "Exponential Moving Average",
			Category:    "trend",
			Params:      []ParamSpec{{Name: "period", Type: ParamInt, Default: 20, Min: 2, Max: 200}},
			Outputs:     []string{outValue},
			Compute:     computeEMA,
			Warmup:      func(p Params) int { return p.Int("period") },
		},
		{
			Name:        "MACD",
			Description: "Moving Average Convergence Divergence",
			Category:    "momentum",
			Params: []ParamSpec{
				{Name: "fast_period", Type: ParamInt, Default: 12, Min: 2, Max: 50},
				{Name: "slow_period", Type: ParamInt, Default: 26, Min: 3, Max: 100},
				{Name: "signal_period", Type: ParamInt, Default: 9, Min: 2, Max: 50},
			},
			Outputs: []string{"macd", "signal", "histogram"},
			Compute: computeMACD,
			Warmup: func(p Params) int {
				return max(p.Int("fast_period"), p.Int("slow_period")) + p.Int("signal_period") - 1
			},
		},
		{
			Name:        "BOLLINGER",
			Description: "Bollinger Bands, volatility envelope around an SMA",
			Category:    "volatility",
			Aliases:     []string{"Bollinger Bands", "BB"},
			Params: []ParamSpec{
				{Name: "period", Type: ParamInt, Default: 20, Min: 2, Max: 100},
				{Name: "std_dev", Type: ParamFloat, Default: 2.0, Min: 0.5, Max: 5.0},
			},
			Outputs: []string{"upper", "middle", "lower"},
			Compute: computeBollinger,
			Warmup:  func(p Params) int { return p.Int("period") },
		},
		{
			Name:        "STOCHASTIC",
			Description: "Stochastic Oscillator",
			Category:    "momentum",
			Params: []ParamSpec{
				{Name: "k_period", Type: ParamInt, Default: 14, Min: 2, Max: 50},
				{Name: "d_period", Type: ParamInt, Default: 3, Min: 1, Max: 20},
				{Name: "slowing", Type: ParamInt, Default: 3, Min: 1, Max: 20},
			},
			Outputs: []string{"k", "d"},
			Compute: computeStochastic,
			Warmup: func(p Params) int {
				return p.Int("k_period") + p.Int("slowing") + p.Int("d_period") - 2
			},
		},
		{
			Name:        "ATR",
			Description: "Average True Range",
			Category:    "volatility",
			Params:      []ParamSpec{{Name: "period", Type: ParamInt, Default: 14, Min: 2, Max: 50}},
			Outputs:     []string{outValue},
			Compute:     computeATR,
			Warmup:      func(p Params) int { return p.Int("period") },
		},
		{
			Name:        "OBV",
			Description: "On-Balance Volume",
			Category:    "volume",
			Outputs:     []string{outValue},
			Compute:     computeOBV,
			Warmup:      func(Params) int { return 2 },
		},
		{
			Name:        "ADX",
			Description: "Average Directional Index, trend strength",
			Category:    "trend",
			Params:      []ParamSpec{{Name: "period", Type: ParamInt, Default: 14, Min: 2, Max: 50}},
			Outputs:     []string{outValue},
			Compute:     computeADX,
			Warmup:      func(p Params) int { return 2 * p.Int("period") },
		},
		{
			Name:        "ICHIMOKU",
			Description: "Ichimoku Kinko Hyo",
			Category:    "trend",
			Aliases:     []string{"Ichimoku Cloud"},
			Params: []ParamSpec{
				{Name: "tenkan_period", Type: ParamInt, Default: 9, Min: 2, Max: 50},
				{Name: "kijun_period", Type: ParamInt, Default: 26, Min: 2, Max: 100},
				{Name: "senkou_span_b_period", Type: ParamInt, Default: 52, Min: 2, Max: 200},
			},
			Outputs: []string{"tenkan_sen", "kijun_sen", "senkou_span_a", "senkou_span_b", "chikou_span"},
			Compute: computeIchimoku,
			Warmup: func(p Params) int {
				kijun := p.Int("kijun_period")
				return kijun + max(p.Int("tenkan_period"), kijun, p.Int("senkou_span_b_period"))
			},
		},
		{
			Name:        "PRICE",
			Description: "Last close, for fixed price and price cross alerts",
			Category:    "price",
			Outputs:     []string{outValue},
			Compute:     computePrice,
			Warmup:      func(Params) int { return 1 },
		},
	}
}

// ─── Momentum ───

func computeRSI(bars []model.Bar, p Params) Output {
	r := NewRSI(p.Int("period"))
	for i := range bars {
		r.Update(bars[i].Close)
	}
	return Output{outValue: r.Value()}
}

func computeMACD(bars []model.Bar, p Params) Output {
	cl := closes(bars)
	fast := emaSeries(cl, p.Int("fast_period"))
	slow := emaSeries(cl, p.Int("slow_period"))

	line := make([]float64, len(cl))
	for i := range cl {
		line[i] = fast[i] - slow[i] // NaN propagates while either is seeding
	}
	signal := emaSeries(line, p.Int("signal_period"))

	m, s := last(line), last(signal)
	return Output{
		"macd":      m,
		"signal":    s,
		"histogram": m - s,
	}
}

func computeStochastic(bars []model.Bar, p Params) Output {
	kPeriod := p.Int("k_period")
	raw := make([]float64, len(bars))
	for i := range bars {
		hh, ll, ok := highLow(bars, i, kPeriod)
		if !ok || hh == ll {
			raw[i] = math.NaN()
			continue
		}
		raw[i] = 100 * (bars[i].Close - ll) / (hh - ll)
	}

	k := raw
	if slowing := p.Int("slowing"); slowing > 1 {
		k = smaSeries(raw, slowing)
	}
	d := smaSeries(k, p.Int("d_period"))
	return Output{"k": last(k), "d": last(d)}
}

// ─── Trend ───

func computeSMA(bars []model.Bar, p Params) Output {
	s := NewSMA(p.Int("period"))
	for i := range bars {
		s.Update(bars[i].Close)
	}
	return Output{outValue: s.Value()}
}

func computeEMA(bars []model.Bar, p Params) Output {
	e := NewEMA(p.Int("period"))
	for i := range bars {
		e.Update(bars[i].Close)
	}
	return Output{outValue: e.Value()}
}

func computeADX(bars []model.Bar, p Params) Output {
	period := p.Int("period")
	if len(bars) < 2 {
		return nanOutput(outValue)
	}

	n := len(bars) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := trueRange(bars)[1:]
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
	}

	sPlus := smmaSeries(plusDM, period)
	sMinus := smmaSeries(minusDM, period)
	sTR := smmaSeries(tr, period)

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(sTR[i]) || sTR[i] == 0 {
			dx[i] = math.NaN()
			continue
		}
		pdi := 100 * sPlus[i] / sTR[i]
		mdi := 100 * sMinus[i] / sTR[i]
		if pdi+mdi == 0 {
			dx[i] = math.NaN()
			continue
		}
		dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}
	return Output{outValue: last(smmaSeries(dx, period))}
}

func computeIchimoku(bars []model.Bar, p Params) Output {
	names := []string{"tenkan_sen", "kijun_sen", "senkou_span_a", "senkou_span_b", "chikou_span"}
	if len(bars) == 0 {
		return nanOutput(names...)
	}
	tenkanP := p.Int("tenkan_period")
	kijunP := p.Int("kijun_period")
	spanBP := p.Int("senkou_span_b_period")

	end := len(bars) - 1
	out := Output{
		"tenkan_sen": midpoint(bars, end, tenkanP),
		"kijun_sen":  midpoint(bars, end, kijunP),
	}

	// Leading spans plotted at the last bar were computed kijun bars ago.
	lead := end - kijunP
	if lead >= 0 {
		out["senkou_span_a"] = (midpoint(bars, lead, tenkanP) + midpoint(bars, lead, kijunP)) / 2
		out["senkou_span_b"] = midpoint(bars, lead, spanBP)
	} else {
		out["senkou_span_a"] = math.NaN()
		out["senkou_span_b"] = math.NaN()
	}

	// The lagging span's newest point is the latest close.
	if len(bars) > kijunP {
		out["chikou_span"] = bars[end].Close
	} else {
		out["chikou_span"] = math.NaN()
	}
	return out
}

// ─── Volatility ───

func computeBollinger(bars []model.Bar, p Params) Output {
	period := p.Int("period")
	if len(bars) < period {
		return nanOutput("upper", "middle", "lower")
	}
	cl := closes(bars)
	end := len(cl) - 1
	middle := last(smaSeries(cl, period))
	width := sampleStd(cl, end, period) * p.Float("std_dev")
	return Output{
		"upper":  middle + width,
		"middle": middle,
		"lower":  middle - width,
	}
}

func computeATR(bars []model.Bar, p Params) Output {
	return Output{outValue: last(smaSeries(trueRange(bars), p.Int("period")))}
}

// ─── Volume / Price ───

func computeOBV(bars []model.Bar, _ Params) Output {
	if len(bars) < 2 {
		return nanOutput(outValue)
	}
	obv := 0.0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			obv -= bars[i].Volume
		}
	}
	return Output{outValue: obv}
}

func computePrice(bars []model.Bar, _ Params) Output {
	if len(bars) == 0 {
		return nanOutput(outValue)
	}
	return Output{outValue: bars[len(bars)-1].Close}
}
