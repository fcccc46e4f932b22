package sentiment

// defaultLexicon valences run roughly from -4 to +4.
var defaultLexicon = map[string]float64{
	// general
	"good": 1.9, "great": 3.1, "excellent": 2.7, "amazing": 2.8, "awesome": 3.1,
	"love": 3.2, "like": 1.5, "happy": 2.7, "nice": 1.8, "best": 3.2,
	"better": 1.9, "strong": 2.3, "win": 2.8, "wins": 2.7, "positive": 2.6,
	"optimistic": 2.4, "confident": 2.2, "impressive": 2.3, "solid": 1.9,
	"bad": -2.5, "terrible": -2.1, "awful": -2.0, "hate": -2.7, "worst": -3.1,
	"worse": -2.1, "weak": -1.9, "poor": -2.1, "negative": -2.7, "sad": -2.1,
	"angry": -2.3, "fear": -2.2, "afraid": -2.0, "worried": -1.8, "worry": -1.9,
	"disappointing": -2.2, "disappointed": -1.9, "horrible": -2.5, "ugly": -2.3,

	// markets
	"bullish": 2.5, "bearish": -2.2, "rally": 1.9, "rallies": 1.8, "surge": 1.8,
	"surges": 1.8, "soar": 2.2, "soars": 2.2, "gain": 2.0, "gains": 1.9,
	"beat": 1.7, "beats": 1.6, "upside": 1.8, "upgrade": 1.9, "upgraded": 1.9,
	"growth": 1.6, "record": 1.2, "profit": 1.9, "profits": 1.9, "profitable": 2.0,
	"outperform": 2.0, "boom": 1.9, "rebound": 1.6, "recovery": 1.4, "breakthrough": 2.2,
	"crash": -2.8, "crashes": -2.7, "plunge": -2.3, "plunges": -2.3, "slump": -2.0,
	"drop": -1.1, "drops": -1.1, "fall": -1.2, "falls": -1.2, "decline": -1.5,
	"declines": -1.5, "miss": -1.4, "misses": -1.4, "downside": -1.6, "downgrade": -1.9,
	"downgraded": -1.9, "loss": -1.9, "losses": -2.0, "recession": -2.4, "bankruptcy": -2.8,
	"default": -1.7, "layoffs": -2.0, "lawsuit": -1.8, "fraud": -2.8, "scandal": -2.5,
	"risk": -1.1, "risky": -1.5, "volatile": -1.2, "selloff": -2.0, "warning": -1.4,
	"underperform": -1.8, "collapse": -2.9, "debt": -1.5, "inflation": -1.0,
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "none": {}, "nor": {}, "neither": {},
	"isn't": {}, "isnt": {}, "aren't": {}, "arent": {}, "wasn't": {}, "wasnt": {},
	"don't": {}, "dont": {}, "doesn't": {}, "doesnt": {}, "didn't": {}, "didnt": {},
	"won't": {}, "wont": {}, "can't": {}, "cant": {}, "cannot": {}, "without": {},
}

var boosters = map[string]float64{
	"very": 0.293, "extremely": 0.293, "really": 0.293, "incredibly": 0.293,
	"hugely": 0.293, "so": 0.293, "totally": 0.293, "absolutely": 0.293,
	"slightly": -0.293, "somewhat": -0.293, "barely": -0.293, "marginally": -0.293,
	"kinda": -0.293, "partly": -0.293,
}

var (
	fallbackPositive = []string{"love", "great", "bullish", "beat", "upside"}
	fallbackNegative = []string{"hate", "bad", "bearish", "miss", "downside"}
)
