package strategy

// evaluateExit runs the five exit rules in priority order. The first rule
// that fires wins; later rules are not consulted.
func (b *Breakout) evaluateExit(f *Frame, i int, pos *Position) *Signal {
	c := f.Candles[i]
	barsHeld := i - pos.EntryIndex

	sell := func(trigger ExitTrigger) *Signal {
		return &Signal{
			Action:    ActionSell,
			Ticker:    f.Ticker,
			Price:     c.Close,
			Exit:      trigger,
			Timestamp: c.Timestamp,
		}
	}

	// 1. Stop loss.
	if pos.StopLoss > 0 && c.Close <= pos.StopLoss {
		return sell(ExitStopLoss)
	}

	// 2. Fakeout: early break back below entry shortly after buying.
	if barsHeld <= 3 && c.Close < pos.EntryPrice*0.98 {
		return sell(ExitFakeout)
	}

	// 3. Take profit.
	if pos.TakeProfit > 0 && c.Close >= pos.TakeProfit {
		return sell(ExitTakeProfit)
	}

	// 4. Trend weakening: ADX lost at least 20% from entry and is below 20.
	entryADX := at(f.ADX, pos.EntryIndex)
	adx := at(f.ADX, i)
	if valid(entryADX) && valid(adx) && entryADX > 0 {
		if adx < 20 && (entryADX-adx)/entryADX >= 0.20 {
			return sell(ExitTrendWeakening)
		}
	}

	// 5. Timeout: held past the limit without the move materialising.
	if barsHeld > b.cfg.TimeoutBars && c.Close < pos.EntryPrice*1.02 {
		return sell(ExitTimeout)
	}

	return &Signal{Action: ActionNone, Ticker: f.Ticker, Timestamp: c.Timestamp}
}
