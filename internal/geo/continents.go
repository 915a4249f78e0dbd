// Package geo maps organization countries to the continent badges of the
// rewards catalog.
package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Continent badge ids.
const (
	Africa       = "africa"
	Asia         = "asia"
	Europe       = "europe"
	NorthAmerica = "northAmerica"
	SouthAmerica = "southAmerica"
	Oceania      = "oceania"
)

// ISO 3166-1 alpha-2 codes grouped by continent. Transcontinental countries
// are listed under the continent holding their capital.
var continentCodes = map[string][]string{
	Africa: {
		"DZ", "AO", "BJ", "BW", "BF", "BI", "CV", "CM", "CF", "TD", "KM", "CG",
		"CD", "CI", "DJ", "EG", "GQ", "ER", "SZ", "ET", "GA", "GM", "GH", "GN",
		"GW", "KE", "LS", "LR", "LY", "MG", "MW", "ML", "MR", "MU", "YT", "MA",
		"MZ", "NA", "NE", "NG", "RE", "RW", "SH", "ST", "SN", "SC", "SL", "SO",
		"ZA", "SS", "SD", "TZ", "TG", "TN", "UG", "EH", "ZM", "ZW",
	},
	Asia: {
		"AF", "AM", "AZ", "BH", "BD", "BT", "BN", "KH", "CN", "GE", "HK", "IN",
		"ID", "IR", "IQ", "IL", "JP", "JO", "KZ", "KW", "KG", "LA", "LB", "MO",
		"MY", "MV", "MN", "MM", "NP", "KP", "OM", "PK", "PS", "PH", "QA", "SA",
		"SG", "KR", "LK", "SY", "TW", "TJ", "TH", "TL", "TR", "TM", "AE", "UZ",
		"VN", "YE",
	},
	Europe: {
		"AL", "AD", "AT", "BY", "BE", "BA", "BG", "HR", "CY", "CZ", "DK", "EE",
		"FO", "FI", "FR", "DE", "GI", "GR", "GG", "HU", "IS", "IE", "IM", "IT",
		"JE", "XK", "LV", "LI", "LT", "LU", "MT", "MD", "MC", "ME", "NL", "MK",
		"NO", "PL", "PT", "RO", "RU", "SM", "RS", "SK", "SI", "ES", "SE", "CH",
		"UA", "GB", "VA", "AX",
	},
	NorthAmerica: {
		"AI", "AG", "AW", "BS", "BB", "BZ", "BM", "BQ", "VG", "CA", "KY", "CR",
		"CU", "CW", "DM", "DO", "SV", "GL", "GD", "GP", "GT", "HT", "HN", "JM",
		"MQ", "MX", "MS", "NI", "PA", "PR", "BL", "KN", "LC", "MF", "PM", "VC",
		"SX", "TT", "TC", "US", "VI",
	},
	SouthAmerica: {
		"AR", "BO", "BR", "CL", "CO", "EC", "FK", "GF", "GY", "PY", "PE", "SR",
		"UY", "VE",
	},
	Oceania: {
		"AS", "AU", "CK", "FJ", "PF", "GU", "KI", "MH", "FM", "NR", "NC", "NZ",
		"NU", "NF", "MP", "PW", "PG", "PN", "WS", "SB", "TK", "TO", "TV", "VU",
		"WF",
	},
}

// English country names and common variants, keyed by normalized name.
var countryNames = map[string]string{
	"algeria": "DZ", "angola": "AO", "benin": "BJ", "botswana": "BW",
	"burkina faso": "BF", "burundi": "BI", "cape verde": "CV", "cabo verde": "CV",
	"cameroon": "CM", "central african republic": "CF", "chad": "TD",
	"comoros": "KM", "congo": "CG", "republic of the congo": "CG",
	"democratic republic of the congo": "CD", "dr congo": "CD", "drc": "CD",
	"ivory coast": "CI", "cote d'ivoire": "CI", "djibouti": "DJ", "egypt": "EG",
	"equatorial guinea": "GQ", "eritrea": "ER", "eswatini": "SZ", "swaziland": "SZ",
	"ethiopia": "ET", "gabon": "GA", "gambia": "GM", "the gambia": "GM",
	"ghana": "GH", "guinea": "GN", "guinea-bissau": "GW", "kenya": "KE",
	"lesotho": "LS", "liberia": "LR", "libya": "LY", "madagascar": "MG",
	"malawi": "MW", "mali": "ML", "mauritania": "MR", "mauritius": "MU",
	"morocco": "MA", "mozambique": "MZ", "namibia": "NA", "niger": "NE",
	"nigeria": "NG", "rwanda": "RW", "sao tome and principe": "ST",
	"senegal": "SN", "seychelles": "SC", "sierra leone": "SL", "somalia": "SO",
	"south africa": "ZA", "south sudan": "SS", "sudan": "SD", "tanzania": "TZ",
	"togo": "TG", "tunisia": "TN", "uganda": "UG", "western sahara": "EH",
	"zambia": "ZM", "zimbabwe": "ZW",

	"afghanistan": "AF", "armenia": "AM", "azerbaijan": "AZ", "bahrain": "BH",
	"bangladesh": "BD", "bhutan": "BT", "brunei": "BN", "cambodia": "KH",
	"china": "CN", "georgia": "GE", "hong kong": "HK", "india": "IN",
	"indonesia": "ID", "iran": "IR", "iraq": "IQ", "israel": "IL", "japan": "JP",
	"jordan": "JO", "kazakhstan": "KZ", "kuwait": "KW", "kyrgyzstan": "KG",
	"laos": "LA", "lebanon": "LB", "macau": "MO", "macao": "MO", "malaysia": "MY",
	"maldives": "MV", "mongolia": "MN", "myanmar": "MM", "burma": "MM",
	"nepal": "NP", "north korea": "KP", "oman": "OM", "pakistan": "PK",
	"palestine": "PS", "philippines": "PH", "qatar": "QA", "saudi arabia": "SA",
	"singapore": "SG", "south korea": "KR", "korea": "KR", "sri lanka": "LK",
	"syria": "SY", "taiwan": "TW", "tajikistan": "TJ", "thailand": "TH",
	"timor-leste": "TL", "east timor": "TL", "turkey": "TR", "turkiye": "TR",
	"turkmenistan": "TM", "united arab emirates": "AE", "uae": "AE",
	"uzbekistan": "UZ", "vietnam": "VN", "viet nam": "VN", "yemen": "YE",

	"albania": "AL", "andorra": "AD", "austria": "AT", "belarus": "BY",
	"belgium": "BE", "bosnia and herzegovina": "BA", "bulgaria": "BG",
	"croatia": "HR", "cyprus": "CY", "czech republic": "CZ", "czechia": "CZ",
	"denmark": "DK", "estonia": "EE", "finland": "FI", "france": "FR",
	"germany": "DE", "greece": "GR", "hungary": "HU", "iceland": "IS",
	"ireland": "IE", "italy": "IT", "kosovo": "XK", "latvia": "LV",
	"liechtenstein": "LI", "lithuania": "LT", "luxembourg": "LU", "malta": "MT",
	"moldova": "MD", "monaco": "MC", "montenegro": "ME", "netherlands": "NL",
	"the netherlands": "NL", "holland": "NL", "north macedonia": "MK",
	"macedonia": "MK", "norway": "NO", "poland": "PL", "portugal": "PT",
	"romania": "RO", "russia": "RU", "russian federation": "RU",
	"san marino": "SM", "serbia": "RS", "slovakia": "SK", "slovenia": "SI",
	"spain": "ES", "sweden": "SE", "switzerland": "CH", "ukraine": "UA",
	"united kingdom": "GB", "uk": "GB", "great britain": "GB", "england": "GB",
	"scotland": "GB", "wales": "GB", "northern ireland": "GB",
	"vatican city": "VA", "holy see": "VA",

	"antigua and barbuda": "AG", "bahamas": "BS", "the bahamas": "BS",
	"barbados": "BB", "belize": "BZ", "canada": "CA", "costa rica": "CR",
	"cuba": "CU", "dominica": "DM", "dominican republic": "DO",
	"el salvador": "SV", "greenland": "GL", "grenada": "GD", "guatemala": "GT",
	"haiti": "HT", "honduras": "HN", "jamaica": "JM", "mexico": "MX",
	"nicaragua": "NI", "panama": "PA", "puerto rico": "PR",
	"saint kitts and nevis": "KN", "saint lucia": "LC",
	"saint vincent and the grenadines": "VC", "trinidad and tobago": "TT",
	"united states": "US", "united states of america": "US", "usa": "US",
	"us": "US", "america": "US",

	"argentina": "AR", "bolivia": "BO", "brazil": "BR", "chile": "CL",
	"colombia": "CO", "ecuador": "EC", "guyana": "GY", "paraguay": "PY",
	"peru": "PE", "suriname": "SR", "uruguay": "UY", "venezuela": "VE",
	"french guiana": "GF",

	"australia": "AU", "fiji": "FJ", "kiribati": "KI", "marshall islands": "MH",
	"micronesia": "FM", "nauru": "NR", "new caledonia": "NC", "new zealand": "NZ",
	"palau": "PW", "papua new guinea": "PG", "samoa": "WS",
	"solomon islands": "SB", "tonga": "TO", "tuvalu": "TV", "vanuatu": "VU",
	"french polynesia": "PF", "guam": "GU",
}

var codeToContinent = buildIndex()

func buildIndex() map[string]string {
	idx := make(map[string]string)
	for continent, codes := range continentCodes {
		for _, code := range codes {
			idx[code] = continent
		}
	}
	return idx
}

// ContinentForCountry returns the continent badge id for an ISO alpha-2 code
// or an English country name. It reports false for anything it cannot place.
func ContinentForCountry(country string) (string, bool) {
	s := strings.TrimSpace(country)
	if s == "" {
		return "", false
	}
	if len(s) == 2 {
		if c, ok := codeToContinent[strings.ToUpper(s)]; ok {
			return c, true
		}
	}
	code, ok := countryNames[normalizeName(s)]
	if !ok {
		return "", false
	}
	c, ok := codeToContinent[code]
	return c, ok
}

// normalizeName lowercases, strips diacritics and collapses whitespace so
// "Côte d’Ivoire" and "cote d'ivoire" match.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r == '’' || r == '`':
			r = '\''
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
