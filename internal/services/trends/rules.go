package trends

import (
	"regexp"
	"strings"

	"scour/internal/domain"
	"scour/internal/geo"
)

var crossBorderPattern = regexp.MustCompile(`(?i)\b(weather|storms?|hurricanes?|typhoons?|cyclones?|flood(s|ing)?|tornado(es)?|blizzards?|snow(storm)?|heat ?waves?|drought|wildfires?|earthquakes?|quakes?|tsunamis?|volcan(o|ic|oes)|eruptions?|landslides?|natural disasters?|epidemics?|pandemics?|outbreaks?|cholera|ebola|measles|dengue|mpox|influenza|virus|migration|migrants?|refugees?|displacement)\b`)

var localCrimePattern = regexp.MustCompile(`(?i)\b(robber(y|ies)|theft|thefts|burglar(y|ies)|assaults?|muggings?|pickpocket(ing|s)?|carjack(ing|ings)?|stabbings?|homicides?|murders?|shootings?|scams?|fraud|petty crime|crime)\b`)

// IsCrossBorderEvent reports whether the event type describes something that
// naturally spans borders: weather, natural disasters, epidemics, migration.
func IsCrossBorderEvent(eventType string) bool {
	return crossBorderPattern.MatchString(eventType)
}

// IsLocalCrime reports event types that never group across countries.
func IsLocalCrime(eventType string) bool {
	return localCrimePattern.MatchString(eventType)
}

// CanGroupCountriesForTrend decides whether incidents in countries a and b
// with the given event type may belong to one trend. Same country always may.
// Different countries need a cross-border event type and either adjacency or a
// shared continent; local crime never crosses a border.
func CanGroupCountriesForTrend(a, b, eventType string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	if geo.SameCountry(a, b) {
		return true
	}
	if IsLocalCrime(eventType) || !IsCrossBorderEvent(eventType) {
		return false
	}
	if geo.Adjacent(a, b) {
		return true
	}
	ca, cb := geo.ContinentOf(a), geo.ContinentOf(b)
	return ca != "" && ca == cb
}

func incidentEventText(inc domain.Incident) string {
	if strings.TrimSpace(inc.EventType) != "" {
		return inc.EventType
	}
	return inc.Title
}

func trendEventText(tr domain.Trend) string {
	if strings.TrimSpace(tr.EventType) != "" {
		return tr.EventType
	}
	return tr.Title
}

func trendCountries(tr domain.Trend) []string {
	out := make([]string, 0, len(tr.Countries)+1)
	seen := map[string]bool{}
	for _, c := range append([]string{tr.Country}, tr.Countries...) {
		k := geo.CanonicalCountry(c)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// PreCheck is the geographic gate run before any generative matching call.
// The incident must be groupable with every country the trend already
// covers, and a trend that names a continent only takes incidents from it.
func PreCheck(inc domain.Incident, tr domain.Trend) bool {
	if continent := geo.ContinentNamed(tr.Title); continent != "" && geo.ContinentOf(inc.Country) != continent {
		return false
	}
	countries := trendCountries(tr)
	if len(countries) == 0 {
		return false
	}
	combined := incidentEventText(inc) + " " + trendEventText(tr)
	for _, c := range countries {
		if !CanGroupCountriesForTrend(inc.Country, c, combined) {
			return false
		}
	}
	return true
}

var placeholderTitlePattern = regexp.MustCompile(`(?i)^\s*(untitled|unnamed|trend|new trend|group|cluster|incidents?|events?|various( incidents| events)?|misc(ellaneous)?|multiple (incidents|events)|related incidents|(trend|group|cluster|incident) ?#?\s*\d+|n/?a|tbd|unknown|none|title)\s*$`)

// IsPlaceholderTitle rejects titles a model emits when it has nothing
// specific to say.
func IsPlaceholderTitle(title string) bool {
	t := strings.TrimSpace(title)
	return len(t) < 8 || placeholderTitlePattern.MatchString(t)
}
