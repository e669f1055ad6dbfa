package validator

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"scour/internal/domain"
)

// ClampSeverity applies the conservative severity rules: critical is never
// kept, generic advisories cap at caution and warning needs a credible source.
func ClampSeverity(severity domain.Severity, draft domain.IncidentDraft, sources []string) domain.Severity {
	if severity == domain.SeverityCritical {
		severity = domain.SeverityWarning
	}
	if IsGenericAdvisory(draft, sources) && severity.Rank() > domain.SeverityCaution.Rank() {
		severity = domain.SeverityCaution
	}
	if severity.Rank() >= domain.SeverityWarning.Rank() && !HasCredibleSource(sources) {
		severity = domain.SeverityCaution
	}
	return severity
}

var genericAdvisoryPattern = regexp.MustCompile(`(?i)\b(tips?|things to know|what you need to know|everything you need|how to|guide to|top \d+|\d+ (ways|things|reasons)|explainer|travel advice|stay safe)\b`)

// lowQualityDomains are registrable domains whose content is rarely first-hand
// reporting.
var lowQualityDomains = map[string]bool{
	"medium.com":      true,
	"blogspot.com":    true,
	"wordpress.com":   true,
	"substack.com":    true,
	"quora.com":       true,
	"reddit.com":      true,
	"pinterest.com":   true,
	"tripadvisor.com": true,
}

// IsGenericAdvisory flags listicle-style drafts and drafts sourced only from
// known low-quality domains.
func IsGenericAdvisory(draft domain.IncidentDraft, sources []string) bool {
	if genericAdvisoryPattern.MatchString(draft.Title) {
		return true
	}
	if len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		if !lowQualityDomains[registrable(s)] {
			return false
		}
	}
	return true
}

var governmentLabels = map[string]bool{
	"gov": true, "gob": true, "gouv": true, "govt": true, "go": true,
	"mil": true, "int": true, "gv": true, "government": true,
}

// credibleDomains are wires, broadcasters and multilateral organisations.
// Subdomains match.
var credibleDomains = []string{
	"reuters.com", "apnews.com", "afp.com", "bloomberg.com",
	"bbc.com", "bbc.co.uk", "aljazeera.com", "cnn.com", "nytimes.com", "washingtonpost.com",
	"theguardian.com", "france24.com", "dw.com", "euronews.com", "nhk.or.jp", "abc.net.au",
	"cbc.ca", "npr.org", "kyodonews.net", "scmp.com", "straitstimes.com", "channelnewsasia.com",
	"un.org", "who.int", "reliefweb.int", "unhcr.org", "unicef.org", "ifrc.org", "icrc.org",
	"europa.eu", "gdacs.org", "canada.ca", "gc.ca", "smartraveller.gov.au",
}

// HasCredibleSource reports whether any source is a government, wire,
// broadcaster or multilateral domain.
func HasCredibleSource(sources []string) bool {
	for _, s := range sources {
		if IsCredibleURL(s) {
			return true
		}
	}
	return false
}

func IsCredibleURL(raw string) bool {
	host := hostOf(raw)
	if host == "" {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	for _, label := range strings.Split(suffix, ".") {
		if governmentLabels[label] {
			return true
		}
	}
	for _, d := range credibleDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

func registrable(raw string) string {
	host := hostOf(raw)
	if host == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return reg
}
