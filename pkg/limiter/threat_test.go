package limiter

import "testing"

func TestAssessThreat(t *testing.T) {
	cases := []struct {
		name      string
		userAgent string
		query     string
		want      ThreatLevel
	}{
		{"CleanBrowser", "Mozilla/5.0 (X11; Linux x86_64)", "page=2&sort=asc", ThreatLow},
		{"EmptyUserAgent", "", "", ThreatMedium},
		{"WhitespaceUserAgent", "   ", "", ThreatMedium},
		{"BotUserAgent", "Googlebot/2.1", "", ThreatMedium},
		{"CrawlerUserAgent", "my-crawler/1.0", "", ThreatMedium},
		{"ScraperUserAgent", "scrapers-r-us", "", ThreatMedium},
		{"SQLProbe", "Mozilla/5.0", "q=1+UNION+SELECT", ThreatMedium},
		{"TraversalProbe", "Mozilla/5.0", "file=../../etc/passwd", ThreatMedium},
		{"ScriptInjection", "Mozilla/5.0", "name=<script>alert(1)</script>", ThreatMedium},
		{"BotWithSQLProbe", "sqlmap-bot", "q=select+1", ThreatHigh},
		{"EmptyAgentWithProbe", "", "q=drop+table", ThreatHigh},
		{"CaseInsensitive", "Mozilla/5.0", "q=SeLeCt", ThreatMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AssessThreat(tc.userAgent, tc.query); got != tc.want {
				t.Errorf("AssessThreat(%q, %q) = %s, want %s", tc.userAgent, tc.query, got, tc.want)
			}
		})
	}
}
