package ingest

import "StagAlgo/pkg/util"

// DefaultAliases maps retired or alternate tickers to the symbol the store
// keys on.
var DefaultAliases = map[string]string{
	"GOOG":  "GOOGL",
	"FB":    "META",
	"BRKB":  "BRK-B",
	"BRK.B": "BRK-B",
	"BRK/B": "BRK-B",
	"BFB":   "BF-B",
	"BF.B":  "BF-B",
}

func mergeAliases(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		from, to := util.NormalizeSymbol(k), util.NormalizeSymbol(v)
		if from == "" || to == "" || from == to {
			continue
		}
		out[from] = to
	}
	return out
}
