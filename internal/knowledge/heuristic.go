package knowledge

import "strings"

// UnknownDomain is the label used when no domain can be determined.
const UnknownDomain = "unknown"

var domainKeywords = []struct {
	domain   string
	keywords []string
}{
	{"e-commerce", []string{"product", "order", "sku", "cart", "customer", "price", "discount", "shipping"}},
	{"finance", []string{"revenue", "salary", "account", "balance", "transaction", "loan", "interest", "credit"}},
	{"healthcare", []string{"patient", "diagnosis", "hospital", "blood", "bmi", "treatment", "dose"}},
	{"real-estate", []string{"bedroom", "bathroom", "sqft", "property", "rent", "lot_size", "zoning"}},
	{"education", []string{"student", "grade", "school", "course", "teacher", "exam"}},
	{"human-resources", []string{"employee", "department", "hire", "manager", "tenure", "job_title"}},
	{"automotive", []string{"mileage", "engine", "vehicle", "make", "model", "fuel"}},
	{"sports", []string{"team", "player", "season", "score", "match", "league"}},
}

// GuessDomain labels a dataset from keywords in its column names. Ties go to
// the domain listed first; no match yields UnknownDomain.
func GuessDomain(columns []string) string {
	best, bestScore := UnknownDomain, 0
	for _, d := range domainKeywords {
		score := 0
		for _, col := range columns {
			lower := strings.ToLower(col)
			for _, kw := range d.keywords {
				if strings.Contains(lower, kw) {
					score++
					break
				}
			}
		}
		if score > bestScore {
			best, bestScore = d.domain, score
		}
	}
	return best
}
