package reporting

import "fmt"

// InterpretConcordance returns a plain-language label for a concordance
// index using the conventional discrimination bands.
func InterpretConcordance(c float64) string {
	switch {
	case c >= 0.8:
		return "Excellent discrimination (>=0.80)"
	case c >= 0.7:
		return "Good discrimination (0.70-0.80)"
	case c >= 0.6:
		return "Modest discrimination (0.60-0.70)"
	case c > 0.5:
		return "Weak discrimination (0.50-0.60)"
	case c == 0.5:
		return "No discrimination (0.50)"
	default:
		return "Inverted discrimination (<0.50), check the risk sign convention"
	}
}

// InterpretSummary formats a one-line interpretation of a model's mean
// concordance.
func InterpretSummary(model, metric string, mean float64) string {
	return fmt.Sprintf("%s mean %s %.3f: %s", model, metric, mean, InterpretConcordance(mean))
}
