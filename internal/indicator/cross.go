package indicator

import "emastream/internal/model"

// valuePair is one finalized bar's (EMA, MA) reading, with readiness flags.
type valuePair struct {
	ema, ma     float64
	emaOK, maOK bool
}

// crossover derives golden/death cross from the two most recent pairs.
// Both signals are false when any of the four values is undefined.
//
//	golden: prev EMA <= prev MA and curr EMA > curr MA
//	death:  prev EMA >= prev MA and curr EMA < curr MA
func crossover(prev, curr valuePair) model.CrossSignal {
	if !prev.emaOK || !prev.maOK || !curr.emaOK || !curr.maOK {
		return model.CrossSignal{}
	}
	return model.CrossSignal{
		GoldenCross: prev.ema <= prev.ma && curr.ema > curr.ma,
		DeathCross:  prev.ema >= prev.ma && curr.ema < curr.ma,
	}
}
