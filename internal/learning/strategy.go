package learning

// Strategy arm names for the strategy/template bandit. Each strategy maps to
// a fixed prompt template; the bandit learns which framing pays off, the
// mapping itself is static.
const (
	StrategySurgical   = "surgical"
	StrategyContextual = "contextual"
	StrategyTestFirst  = "test_first"
)

// DefaultStrategies lists strategy arms in registration order.
var DefaultStrategies = []string{StrategySurgical, StrategyContextual, StrategyTestFirst}

var strategyTemplates = map[string]string{
	StrategySurgical:   "minimal_patch",
	StrategyContextual: "context_rich",
	StrategyTestFirst:  "test_driven",
}

// TemplateFor returns the prompt template for a strategy. Unknown strategies
// get the minimal-patch template.
func TemplateFor(strategy string) string {
	if t, ok := strategyTemplates[strategy]; ok {
		return t
	}
	return strategyTemplates[StrategySurgical]
}
