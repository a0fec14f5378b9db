package limiter

import "strings"

// suspiciousTokens are query-string fragments that indicate probing for
// injection or traversal. Matching is case-insensitive and short-circuits
// on the first hit.
var suspiciousTokens = []string{
	"sql",
	"union",
	"select",
	"drop",
	"insert",
	"script",
	"alert",
	"javascript",
	"<script>",
	"../",
	"..\\",
	"passwd",
	"etc/passwd",
}

// botMarkers flag automated clients in the user agent.
var botMarkers = []string{
	"bot",
	"crawl",
	"spider",
	"scrape",
}

// AssessThreat scores request metadata into a coarse threat level. The
// score is additive: a missing or bot-like user agent contributes 1, a
// suspicious query-string token contributes 2.
func AssessThreat(userAgent, queryString string) ThreatLevel {
	score := 0

	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		score++
	} else {
		for _, marker := range botMarkers {
			if strings.Contains(ua, marker) {
				score++
				break
			}
		}
	}

	query := strings.ToLower(queryString)
	for _, token := range suspiciousTokens {
		if strings.Contains(query, token) {
			score += 2
			break
		}
	}

	switch {
	case score >= 4:
		return ThreatCritical
	case score >= 3:
		return ThreatHigh
	case score >= 1:
		return ThreatMedium
	default:
		return ThreatLow
	}
}
