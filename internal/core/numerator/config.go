package numerator

// Strategy selects how sequence values are drawn from storage.
type Strategy int

const (
	// StrategyStrict increments the stored sequence once per number, so
	// numbers are gapless. Used for documents a customer or auditor sees.
	StrategyStrict Strategy = iota

	// StrategyCached reserves a range per storage round trip and hands it
	// out from memory. A restart loses the unused part of the range.
	StrategyCached
)

// ResetPeriod is how often a sequence starts again at 1.
type ResetPeriod string

const (
	ResetYearly  ResetPeriod = "year"
	ResetMonthly ResetPeriod = "month"
	ResetNever   ResetPeriod = "never"
)

// Document prefixes.
const (
	PrefixImport  = "IMP"
	PrefixOrder   = "ORD"
	PrefixInvoice = "INV"
	PrefixRefund  = "REF"
)

// Options tune allocation.
type Options struct {
	Strategy Strategy
	// RangeSize is the reservation size for StrategyCached (default 50).
	RangeSize int64
}

// DefaultOptions returns strict allocation.
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Config is the number format: PREFIX-YEAR-00001.
type Config struct {
	Prefix      string
	IncludeYear bool
	// PadWidth is the minimum width of the counter (default 5).
	PadWidth    int
	ResetPeriod ResetPeriod
}

// DefaultConfig returns a yearly-reset, year-stamped format for prefix.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: ResetYearly,
	}
}

// Policy is the numbering of one document kind.
type Policy struct {
	Config  Config
	Options Options
}

// Numbering policies. Imported orders share the ORD sequence with checkout
// orders but reserve ranges, since one import can create hundreds of orders.
var (
	ImportPolicy        = Policy{Config: DefaultConfig(PrefixImport), Options: Options{Strategy: StrategyStrict}}
	OrderPolicy         = Policy{Config: DefaultConfig(PrefixOrder), Options: Options{Strategy: StrategyStrict}}
	ImportedOrderPolicy = Policy{Config: DefaultConfig(PrefixOrder), Options: Options{Strategy: StrategyCached, RangeSize: 50}}
	InvoicePolicy       = Policy{Config: DefaultConfig(PrefixInvoice), Options: Options{Strategy: StrategyStrict}}
	RefundPolicy        = Policy{Config: DefaultConfig(PrefixRefund), Options: Options{Strategy: StrategyStrict}}
)
