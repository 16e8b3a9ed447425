package origin

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Keyword maps a country-name variant to the canonical localized name.
// LabelOnly terms are short or ambiguous ("uk", "usa") and only trusted
// inside a captured location label.
type Keyword struct {
	Term      string `yaml:"term"`
	Country   string `yaml:"country"`
	LabelOnly bool   `yaml:"labelOnly"`
}

type Table struct {
	// Labels precede a location segment, lowercase, in priority order.
	Labels   []string  `yaml:"labels"`
	Keywords []Keyword `yaml:"keywords"`
	// StructuredPaths are JSON-LD paths whose value names a country.
	StructuredPaths [][]string `yaml:"structuredPaths"`
	// Codes maps ISO 3166 alpha-2 codes, as used in addressCountry.
	Codes map[string]string `yaml:"codes"`
	// MaxSegment bounds the text captured after a label, in runes.
	MaxSegment int `yaml:"maxSegment"`
}

const defaultMaxSegment = 60

// LoadTable overlays the YAML file at path onto DefaultTable. Overlay
// keywords are matched before the built-in ones; labels and paths are
// appended.
func LoadTable(path string) (*Table, error) {
	table := DefaultTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read origin table: %w", err)
	}

	var overlay Table
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse origin table %s: %w", path, err)
	}

	return table.Merge(&overlay), nil
}

// Merge returns a copy of t extended by overlay.
func (t *Table) Merge(overlay *Table) *Table {
	merged := &Table{
		MaxSegment: t.MaxSegment,
		Codes:      make(map[string]string, len(t.Codes)+len(overlay.Codes)),
	}

	merged.Labels = append(merged.Labels, t.Labels...)
	for _, l := range overlay.Labels {
		merged.Labels = append(merged.Labels, strings.ToLower(strings.TrimSpace(l)))
	}

	for _, k := range overlay.Keywords {
		k.Term = strings.ToLower(strings.TrimSpace(k.Term))
		if k.Term != "" && k.Country != "" {
			merged.Keywords = append(merged.Keywords, k)
		}
	}
	merged.Keywords = append(merged.Keywords, t.Keywords...)

	merged.StructuredPaths = append(merged.StructuredPaths, t.StructuredPaths...)
	merged.StructuredPaths = append(merged.StructuredPaths, overlay.StructuredPaths...)

	for code, country := range t.Codes {
		merged.Codes[code] = country
	}
	for code, country := range overlay.Codes {
		merged.Codes[strings.ToLower(code)] = country
	}

	if overlay.MaxSegment > 0 {
		merged.MaxSegment = overlay.MaxSegment
	}
	return merged
}

func DefaultTable() *Table {
	return &Table{
		Labels: []string{
			"item location:",
			"located in:",
			"ships from:",
			"dispatched from:",
			"country of origin:",
			"artikelstandort:",
			"standort:",
			"versand aus:",
			"versand von:",
			"herkunftsland:",
			"lieu où se trouve l'objet :",
			"localisation :",
			"localisation:",
			"expédié depuis",
			"posizione dell'oggetto:",
			"spedito da:",
			"ubicación:",
			"país:",
			"locatie:",
			"verzonden vanuit",
			"lokalizacja:",
			"wysyłka z:",
			"місцезнаходження:",
			"відправка з:",
			"країна походження:",
			"located in",
			"ships from",
			"von:",
			"aus:",
		},
		Keywords:        defaultKeywords(),
		StructuredPaths: defaultStructuredPaths(),
		Codes: map[string]string{
			"de": "Німеччина", "at": "Австрія", "ch": "Швейцарія", "gb": "Велика Британія",
			"uk": "Велика Британія", "ie": "Ірландія", "us": "США", "ca": "Канада",
			"fr": "Франція", "it": "Італія", "es": "Іспанія", "nl": "Нідерланди",
			"be": "Бельгія", "pl": "Польща", "cz": "Чехія", "lt": "Литва", "se": "Швеція",
			"ua": "Україна", "tr": "Туреччина", "cn": "Китай", "hk": "Гонконг",
			"tw": "Тайвань", "kr": "Південна Корея", "jp": "Японія", "in": "Індія",
			"au": "Австралія", "mx": "Мексика", "br": "Бразилія",
		},
		MaxSegment: defaultMaxSegment,
	}
}

func defaultStructuredPaths() [][]string {
	return [][]string{
		{"offers", "seller", "address", "addressCountry"},
		{"offers", "availableAtOrFrom", "address", "addressCountry"},
		{"offers", "shippingDetails", "shippingOrigin", "addressCountry"},
		{"itemLocation", "address", "addressCountry"},
		{"countryOfOrigin"},
		{"madeIn"},
		{"manufacturer", "address", "addressCountry"},
	}
}

func defaultKeywords() []Keyword {
	variants := []struct {
		country   string
		terms     []string
		labelOnly []string
	}{
		{"Німеччина", []string{"germany", "deutschland", "allemagne", "germania", "alemania", "niemcy", "німеччина", "германия"}, []string{"de"}},
		{"США", []string{"united states", "vereinigte staaten", "états-unis", "stati uniti", "estados unidos", "stany zjednoczone", "сша"}, []string{"usa", "us", "u.s."}},
		{"Велика Британія", []string{"united kingdom", "great britain", "england", "scotland", "wales", "großbritannien", "vereinigtes königreich", "royaume-uni", "regno unito", "reino unido", "wielka brytania", "велика британія"}, []string{"uk", "gb"}},
		{"Китай", []string{"china", "chine", "cina", "chiny", "китай"}, []string{"cn"}},
		{"Гонконг", []string{"hong kong", "hongkong", "гонконг"}, []string{"hk"}},
		{"Тайвань", []string{"taiwan", "тайвань"}, nil},
		{"Південна Корея", []string{"south korea", "südkorea", "corée du sud", "південна корея"}, []string{"korea"}},
		{"Японія", []string{"japan", "japon", "giappone", "japón", "japonia", "японія"}, nil},
		{"Франція", []string{"france", "frankreich", "francia", "francja", "франція"}, nil},
		{"Італія", []string{"italy", "italien", "italie", "italia", "włochy", "італія"}, nil},
		{"Іспанія", []string{"spain", "spanien", "espagne", "spagna", "españa", "espana", "hiszpania", "іспанія"}, nil},
		{"Нідерланди", []string{"netherlands", "niederlande", "pays-bas", "paesi bassi", "países bajos", "nederland", "holland", "holandia", "нідерланди"}, nil},
		{"Бельгія", []string{"belgium", "belgien", "belgique", "belgio", "bélgica", "belgia", "бельгія"}, nil},
		{"Австрія", []string{"austria", "österreich", "autriche", "австрія"}, nil},
		{"Швейцарія", []string{"switzerland", "schweiz", "suisse", "svizzera", "suiza", "szwajcaria", "швейцарія"}, nil},
		{"Польща", []string{"poland", "polen", "pologne", "polonia", "polska", "польща"}, nil},
		{"Чехія", []string{"czech republic", "czechia", "tschechien", "tchéquie", "czechy", "чехія"}, nil},
		{"Литва", []string{"lithuania", "litauen", "lituanie", "litwa", "литва"}, nil},
		{"Швеція", []string{"sweden", "schweden", "suède", "svezia", "suecia", "szwecja", "швеція"}, nil},
		{"Ірландія", []string{"ireland", "irland", "irlande", "irlanda", "irlandia", "ірландія"}, nil},
		{"Україна", []string{"ukraine", "ucraina", "ucrania", "ukraina", "україна"}, nil},
		{"Туреччина", []string{"turkey", "türkei", "türkiye", "turquie", "turchia", "turquía", "turcja", "туреччина"}, nil},
		{"Індія", []string{"india", "indien", "індія"}, []string{"inde", "indie"}},
		{"Канада", []string{"canada", "kanada", "канада"}, nil},
		{"Австралія", []string{"australia", "australien", "australie", "австралія"}, nil},
		{"Мексика", []string{"mexico", "mexiko", "méxico", "мексика"}, nil},
		{"Бразилія", []string{"brazil", "brasilien", "brasil", "brésil", "бразилія"}, nil},
	}

	var keywords []Keyword
	for _, v := range variants {
		for _, term := range v.terms {
			keywords = append(keywords, Keyword{Term: term, Country: v.country})
		}
		for _, term := range v.labelOnly {
			keywords = append(keywords, Keyword{Term: term, Country: v.country, LabelOnly: true})
		}
	}
	return keywords
}
