package fx

import "time"

// Position GL books per currency. Each foreign currency the desk trades has a
// dedicated position GL the local-currency mirror legs post to.
var positionGLs = map[string]string{
	"USD": "920101001",
	"EUR": "920102001",
	"GBP": "920103001",
	"JPY": "920104001",
}

// FX result GLs.
const (
	RealisedGainGL   = "140203001"
	UnrealisedGainGL = "140203002"
	RealisedLossGL   = "240203001"
	UnrealisedLossGL = "240203002"
)

// Nostro GLs revalued at day end per currency.
var nostroGLs = map[string]string{
	"USD": "220302001",
	"EUR": "220303001",
	"GBP": "220304001",
	"JPY": "220305001",
}

// PositionGL returns the position GL for a currency, empty when the currency
// is not traded.
func PositionGL(ccy string) string {
	return positionGLs[ccy]
}

// NostroGL returns the revalued nostro GL for a currency.
func NostroGL(ccy string) string {
	return nostroGLs[ccy]
}

// Rate is a row in fx_rate_master.
type Rate struct {
	CcyPair     string    `json:"ccyPair"`
	RateDate    time.Time `json:"rateDate"`
	BuyingRate  float64   `json:"buyingRate"`
	MidRate     float64   `json:"midRate"`
	SellingRate float64   `json:"sellingRate"`
	Source      string    `json:"source"`
}

// WAEPosition is a row in mc_wae_master: the running weighted average
// exchange position per currency pair.
type WAEPosition struct {
	CcyPair    string
	FcyBalance float64
	LcyBalance float64
	WAERate    float64
	UpdatedAt  time.Time
}

// SettlementType classifies a realised settlement difference.
type SettlementType string

const (
	SettlementGain SettlementType = "GAIN"
	SettlementLoss SettlementType = "LOSS"
)

// Settlement records a realised gain or loss on a SELL.
type Settlement struct {
	ID         string
	BaseTranID string
	CcyPair    string
	FcyAmount  float64
	DealRate   float64
	WAERate    float64
	Amount     float64
	Type       SettlementType
	Status     string
	Narration  string
	TranDate   time.Time
}

// RevalStatus tracks revaluation entry lifecycle.
type RevalStatus string

const (
	RevalPosted   RevalStatus = "POSTED"
	RevalReversed RevalStatus = "REVERSED"
)

// RevalEntry is a pair of revaluation postings for one revalued book.
type RevalEntry struct {
	TranID         string
	RevalDate      time.Time
	CcyPair        string
	GLNum          string
	BookedLcy      float64
	MtmLcy         float64
	Difference     float64
	DrAccount      string
	CrAccount      string
	Status         RevalStatus
	ReversalTranID string
	ReversedOn     *time.Time
}

// RevalResult summarises a revaluation run.
type RevalResult struct {
	RevalDate     time.Time
	EntriesPosted int
	TotalGain     float64
	TotalLoss     float64
	Entries       []RevalEntry
}

// Direction of the foreign currency leg seen from the bank's book.
type Direction string

const (
	// DirectionBuy means the bank acquires foreign currency (FCY credited).
	DirectionBuy Direction = "BUY"
	// DirectionSell means the bank releases foreign currency (FCY debited).
	DirectionSell Direction = "SELL"
)
