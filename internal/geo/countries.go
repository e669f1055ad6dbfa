// Package geo holds the country tables and geometry helpers shared by the
// validator and the trend engine.
package geo

import (
	"sort"
	"strings"
)

type Continent string

const (
	Africa       Continent = "africa"
	Asia         Continent = "asia"
	Europe       Continent = "europe"
	NorthAmerica Continent = "north_america"
	SouthAmerica Continent = "south_america"
	Oceania      Continent = "oceania"
)

var continents = map[string]Continent{
	// Africa
	"algeria": Africa, "angola": Africa, "benin": Africa, "botswana": Africa, "burkina faso": Africa,
	"burundi": Africa, "cameroon": Africa, "central african republic": Africa, "chad": Africa,
	"democratic republic of the congo": Africa, "republic of the congo": Africa, "djibouti": Africa,
	"egypt": Africa, "eritrea": Africa, "ethiopia": Africa, "gabon": Africa, "gambia": Africa,
	"ghana": Africa, "guinea": Africa, "ivory coast": Africa, "kenya": Africa, "lesotho": Africa,
	"liberia": Africa, "libya": Africa, "madagascar": Africa, "malawi": Africa, "mali": Africa,
	"mauritania": Africa, "morocco": Africa, "mozambique": Africa, "namibia": Africa, "niger": Africa,
	"nigeria": Africa, "rwanda": Africa, "senegal": Africa, "sierra leone": Africa, "somalia": Africa,
	"south africa": Africa, "south sudan": Africa, "sudan": Africa, "tanzania": Africa, "togo": Africa,
	"tunisia": Africa, "uganda": Africa, "zambia": Africa, "zimbabwe": Africa,

	// Asia, Middle East included
	"afghanistan": Asia, "armenia": Asia, "azerbaijan": Asia, "bahrain": Asia, "bangladesh": Asia,
	"bhutan": Asia, "brunei": Asia, "cambodia": Asia, "china": Asia, "georgia": Asia, "india": Asia,
	"indonesia": Asia, "iran": Asia, "iraq": Asia, "israel": Asia, "japan": Asia, "jordan": Asia,
	"kazakhstan": Asia, "kuwait": Asia, "kyrgyzstan": Asia, "laos": Asia, "lebanon": Asia,
	"malaysia": Asia, "maldives": Asia, "mongolia": Asia, "myanmar": Asia, "nepal": Asia,
	"north korea": Asia, "oman": Asia, "pakistan": Asia, "palestine": Asia, "philippines": Asia,
	"qatar": Asia, "saudi arabia": Asia, "singapore": Asia, "south korea": Asia, "sri lanka": Asia,
	"syria": Asia, "taiwan": Asia, "tajikistan": Asia, "thailand": Asia, "timor-leste": Asia,
	"turkey": Asia, "turkmenistan": Asia, "united arab emirates": Asia, "uzbekistan": Asia,
	"vietnam": Asia, "yemen": Asia,

	// Europe
	"albania": Europe, "austria": Europe, "belarus": Europe, "belgium": Europe,
	"bosnia and herzegovina": Europe, "bulgaria": Europe, "croatia": Europe, "cyprus": Europe,
	"czech republic": Europe, "denmark": Europe, "estonia": Europe, "finland": Europe, "france": Europe,
	"germany": Europe, "greece": Europe, "hungary": Europe, "iceland": Europe, "ireland": Europe,
	"italy": Europe, "kosovo": Europe, "latvia": Europe, "lithuania": Europe, "luxembourg": Europe,
	"malta": Europe, "moldova": Europe, "montenegro": Europe, "netherlands": Europe,
	"north macedonia": Europe, "norway": Europe, "poland": Europe, "portugal": Europe,
	"romania": Europe, "russia": Europe, "serbia": Europe, "slovakia": Europe, "slovenia": Europe,
	"spain": Europe, "sweden": Europe, "switzerland": Europe, "ukraine": Europe,
	"united kingdom": Europe,

	// North America, Central America and the Caribbean
	"bahamas": NorthAmerica, "belize": NorthAmerica, "canada": NorthAmerica, "costa rica": NorthAmerica,
	"cuba": NorthAmerica, "dominican republic": NorthAmerica, "el salvador": NorthAmerica,
	"guatemala": NorthAmerica, "haiti": NorthAmerica, "honduras": NorthAmerica, "jamaica": NorthAmerica,
	"mexico": NorthAmerica, "nicaragua": NorthAmerica, "panama": NorthAmerica, "puerto rico": NorthAmerica,
	"trinidad and tobago": NorthAmerica, "united states": NorthAmerica,

	// South America
	"argentina": SouthAmerica, "bolivia": SouthAmerica, "brazil": SouthAmerica, "chile": SouthAmerica,
	"colombia": SouthAmerica, "ecuador": SouthAmerica, "guyana": SouthAmerica, "paraguay": SouthAmerica,
	"peru": SouthAmerica, "suriname": SouthAmerica, "uruguay": SouthAmerica, "venezuela": SouthAmerica,

	// Oceania
	"australia": Oceania, "fiji": Oceania, "new zealand": Oceania, "papua new guinea": Oceania,
	"samoa": Oceania, "solomon islands": Oceania, "tonga": Oceania, "vanuatu": Oceania,
}

var aliases = map[string]string{
	"usa":                      "united states",
	"us":                       "united states",
	"u.s.":                     "united states",
	"u.s.a.":                   "united states",
	"united states of america": "united states",
	"america":                  "united states",
	"uk":                       "united kingdom",
	"u.k.":                     "united kingdom",
	"britain":                  "united kingdom",
	"great britain":            "united kingdom",
	"england":                  "united kingdom",
	"scotland":                 "united kingdom",
	"wales":                    "united kingdom",
	"northern ireland":         "united kingdom",
	"uae":                      "united arab emirates",
	"drc":                      "democratic republic of the congo",
	"dr congo":                 "democratic republic of the congo",
	"congo-kinshasa":           "democratic republic of the congo",
	"congo-brazzaville":        "republic of the congo",
	"congo":                    "republic of the congo",
	"côte d'ivoire":            "ivory coast",
	"cote d'ivoire":            "ivory coast",
	"czechia":                  "czech republic",
	"türkiye":                  "turkey",
	"turkiye":                  "turkey",
	"burma":                    "myanmar",
	"east timor":               "timor-leste",
	"korea":                    "south korea",
	"republic of korea":        "south korea",
	"dprk":                     "north korea",
	"russian federation":       "russia",
	"holland":                  "netherlands",
	"the netherlands":          "netherlands",
	"viet nam":                 "vietnam",
	"macedonia":                "north macedonia",
	"the bahamas":              "bahamas",
	"the gambia":               "gambia",
	"state of palestine":       "palestine",
	"gaza":                     "palestine",
	"west bank":                "palestine",
}

// adjacency lists land and short maritime neighbours. Each pair is written
// once; Adjacent checks both directions.
var adjacency = map[string][]string{
	"france":         {"germany", "belgium", "luxembourg", "switzerland", "italy", "spain", "united kingdom"},
	"germany":        {"netherlands", "belgium", "luxembourg", "switzerland", "austria", "czech republic", "poland", "denmark"},
	"spain":          {"portugal", "morocco"},
	"italy":          {"switzerland", "austria", "slovenia"},
	"austria":        {"switzerland", "czech republic", "slovakia", "hungary", "slovenia"},
	"poland":         {"czech republic", "slovakia", "ukraine", "belarus", "lithuania"},
	"ukraine":        {"russia", "belarus", "moldova", "romania", "hungary", "slovakia"},
	"russia":         {"belarus", "finland", "estonia", "latvia", "georgia", "azerbaijan", "kazakhstan", "china", "mongolia", "north korea"},
	"united kingdom": {"ireland"},
	"sweden":         {"norway", "finland", "denmark"},
	"greece":         {"albania", "north macedonia", "bulgaria", "turkey"},
	"serbia":         {"hungary", "romania", "bulgaria", "north macedonia", "kosovo", "montenegro", "bosnia and herzegovina", "croatia"},
	"turkey":         {"bulgaria", "georgia", "armenia", "iran", "iraq", "syria"},
	"israel":         {"lebanon", "syria", "jordan", "egypt", "palestine"},
	"syria":          {"lebanon", "jordan", "iraq"},
	"iraq":           {"iran", "kuwait", "saudi arabia", "jordan"},
	"saudi arabia":   {"jordan", "kuwait", "qatar", "united arab emirates", "oman", "yemen", "bahrain"},
	"iran":           {"afghanistan", "pakistan", "turkmenistan", "azerbaijan", "armenia"},
	"india":          {"pakistan", "china", "nepal", "bhutan", "bangladesh", "myanmar", "sri lanka"},
	"china":          {"mongolia", "north korea", "vietnam", "laos", "myanmar", "nepal", "bhutan", "pakistan", "afghanistan", "kazakhstan", "kyrgyzstan", "tajikistan", "taiwan"},
	"thailand":       {"myanmar", "laos", "cambodia", "malaysia"},
	"vietnam":        {"laos", "cambodia"},
	"malaysia":       {"singapore", "indonesia", "brunei"},
	"indonesia":      {"timor-leste", "papua new guinea", "philippines"},
	"japan":          {"south korea"},
	"south korea":    {"north korea"},
	"australia":      {"new zealand", "papua new guinea"},
	"united states":  {"canada", "mexico", "cuba", "bahamas"},
	"mexico":         {"guatemala", "belize"},
	"guatemala":      {"belize", "el salvador", "honduras"},
	"honduras":       {"el salvador", "nicaragua"},
	"costa rica":     {"nicaragua", "panama"},
	"panama":         {"colombia"},
	"cuba":           {"haiti", "jamaica", "bahamas"},
	"haiti":          {"dominican republic"},
	"dominican republic": {"puerto rico"},
	"colombia":       {"venezuela", "ecuador", "peru", "brazil"},
	"brazil":         {"venezuela", "guyana", "suriname", "peru", "bolivia", "paraguay", "argentina", "uruguay"},
	"argentina":      {"chile", "bolivia", "paraguay", "uruguay"},
	"peru":           {"ecuador", "bolivia", "chile"},
	"egypt":          {"libya", "sudan"},
	"libya":          {"tunisia", "algeria", "niger", "chad", "sudan"},
	"algeria":        {"tunisia", "morocco", "mali", "niger", "mauritania"},
	"nigeria":        {"benin", "niger", "chad", "cameroon"},
	"kenya":          {"ethiopia", "somalia", "south sudan", "uganda", "tanzania"},
	"ethiopia":       {"eritrea", "djibouti", "somalia", "sudan", "south sudan"},
	"sudan":          {"south sudan", "chad", "central african republic", "eritrea"},
	"democratic republic of the congo": {"republic of the congo", "central african republic", "south sudan", "uganda", "rwanda", "burundi", "tanzania", "zambia", "angola"},
	"south africa":   {"namibia", "botswana", "zimbabwe", "mozambique", "lesotho"},
	"mozambique":     {"tanzania", "malawi", "zambia", "zimbabwe", "madagascar"},
}

var adjacencySet = buildAdjacency()

func buildAdjacency() map[[2]string]bool {
	set := make(map[[2]string]bool)
	for a, list := range adjacency {
		for _, b := range list {
			set[[2]string{a, b}] = true
			set[[2]string{b, a}] = true
		}
	}
	return set
}

// key lowercases and resolves aliases.
func key(country string) string {
	k := strings.ToLower(strings.Join(strings.Fields(country), " "))
	if alias, ok := aliases[k]; ok {
		return alias
	}
	return strings.TrimPrefix(k, "the ")
}

// CanonicalCountry returns a comparable form of a country name: lowercase with
// common aliases resolved. Unknown names are returned lowercased.
func CanonicalCountry(country string) string {
	return key(country)
}

// CountrySpellings lists the lowercase spellings that resolve to the same
// country as name, canonical form first. It lets stores match by country
// without knowing the alias table.
func CountrySpellings(name string) []string {
	canon := key(name)
	if canon == "" {
		return nil
	}
	out := []string{canon, "the " + canon}
	for alias, target := range aliases {
		if target == canon {
			out = append(out, alias)
		}
	}
	sort.Strings(out[2:])
	return out
}

// SameCountry compares two country names after alias resolution.
func SameCountry(a, b string) bool {
	ka, kb := key(a), key(b)
	return ka != "" && ka == kb
}

// ContinentOf returns the continent for a country, or "" when unknown.
func ContinentOf(country string) Continent {
	return continents[key(country)]
}

// Adjacent reports whether the countries are listed as neighbours.
func Adjacent(a, b string) bool {
	return adjacencySet[[2]string{key(a), key(b)}]
}

var continentNames = []struct {
	phrase    string
	continent Continent
}{
	{"south america", SouthAmerica},
	{"south american", SouthAmerica},
	{"north america", NorthAmerica},
	{"north american", NorthAmerica},
	{"central america", NorthAmerica},
	{"caribbean", NorthAmerica},
	{"middle east", Asia},
	{"southeast asia", Asia},
	{"europe", Europe},
	{"european", Europe},
	{"africa", Africa},
	{"african", Africa},
	{"asia", Asia},
	{"asian", Asia},
	{"oceania", Oceania},
	{"pacific islands", Oceania},
}

// ContinentNamed returns the continent a free-text title names, if any.
// "South Africa" names a country, not the continent.
func ContinentNamed(text string) Continent {
	padded := " " + strings.ToLower(strings.Join(strings.FieldsFunc(text, isSeparator), " ")) + " "
	padded = strings.ReplaceAll(padded, " south africa ", " ")
	padded = strings.ReplaceAll(padded, " central african republic ", " ")
	for _, c := range continentNames {
		if strings.Contains(padded, " "+c.phrase+" ") {
			return c.continent
		}
	}
	return ""
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', ',', '.', ':', ';', '(', ')', '/', '-', '!', '?', '"', '\'':
		return true
	}
	return false
}
