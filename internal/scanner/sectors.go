package scanner

import "strings"

// Static sector map for the liquid top of the KRW market. Anything missing
// falls into "unknown".
var sectorMap = map[string]string{
	"BTC": "store-of-value",
	"ETH": "layer-1", "SOL": "layer-1", "ADA": "layer-1", "AVAX": "layer-1",
	"NEAR": "layer-1", "APT": "layer-1", "SUI": "layer-1", "TRX": "layer-1",
	"DOT": "layer-0", "ATOM": "layer-0",
	"MATIC": "layer-2", "POL": "layer-2", "ARB": "layer-2", "OP": "layer-2", "STRK": "layer-2",
	"LINK": "oracle", "PYTH": "oracle",
	"UNI": "defi", "AAVE": "defi", "CRV": "defi", "COMP": "defi", "MKR": "defi", "JUP": "defi",
	"DOGE": "meme", "SHIB": "meme", "PEPE": "meme", "BONK": "meme", "WIF": "meme",
	"XRP": "payments", "XLM": "payments", "BCH": "payments", "LTC": "payments",
	"FIL": "storage", "AR": "storage",
	"RNDR": "ai", "FET": "ai", "TAO": "ai",
	"SAND": "gaming", "MANA": "gaming", "AXS": "gaming", "IMX": "gaming",
}

func sectorOf(symbol string) string {
	if sec, ok := sectorMap[strings.ToUpper(symbol)]; ok {
		return sec
	}
	return "unknown"
}

// diversifySectors is phase 2: with one_per_sector, keep only the highest
// volume candidate per sector. Input order is the liquidity ranking, so the
// first seen per sector wins.
func (s *Scanner) diversifySectors(candidates []*Candidate) []*Candidate {
	if !s.cfg.EnableSectorDiversification {
		return candidates
	}

	out := make([]*Candidate, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		if s.cfg.DropUnknownSector && c.Sector == "unknown" {
			continue
		}
		if s.cfg.OnePerSector && c.Sector != "unknown" {
			if seen[c.Sector] {
				continue
			}
			seen[c.Sector] = true
		}
		out = append(out, c)
	}
	return out
}
