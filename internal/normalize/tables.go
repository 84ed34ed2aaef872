package normalize

import "regexp"

// Replacement is a scoped find/replace rule applied in table order.
type Replacement struct {
	Name    string
	Pattern *regexp.Regexp
	Replace string
}

// Synonym maps a label term in any language to the canonical term appended
// to the text for matching.
type Synonym struct {
	Term      string
	Canonical string
}

// leftBound captures the character before a token (or start of text) so
// rules can anchor on accented first letters, which RE2's \b cannot.
const leftBound = `(^|[^\pL\pN])`

func scoped(name, expr, replace string) Replacement {
	return Replacement{
		Name:    name,
		Pattern: regexp.MustCompile(`(?i)` + leftBound + expr),
		Replace: `${1}` + replace,
	}
}

// QuoteVariants are typographic apostrophes folded to ASCII '.
var QuoteVariants = []string{"’", "‘", "ʼ", "ʻ", "′", "´", "`"}

// OCRRules repair digit/letter confusions seen on scanned labels. Each rule
// is anchored to an ingredient stem so bare digits are never touched.
var OCRRules = []Replacement{
	scoped("gelatine-both", `g([eé])1at1n`, `g${2}latin`),
	scoped("gelatine-l", `g([eé])1atin`, `g${2}latin`),
	scoped("gelatine-i", `g([eé])lat1n`, `g${2}latin`),
	scoped("pork", `p0r([ck])`, `por${2}`),
	scoped("lard", `1ard`, `lard`),
	scoped("saindoux", `sa1ndoux`, `saindoux`),
	scoped("collagen", `co(?:1l|l1|11)ag([eè])n`, `collag${2}n`),
	scoped("alcohol-l", `a1co(h?o)l`, `alco${2}l`),
	scoped("alcool-o", `alc(?:0o|o0|00)l`, `alcool`),
	scoped("alcohol-o", `alc0hol`, `alcohol`),
	scoped("glycerol", `g1yc([eé])r`, `glyc${2}r`),
	scoped("emulsifier", `([eé])mu1s`, `${2}muls`),
	scoped("shellac", `she(?:1l|l1|11)ac`, `shellac`),
	scoped("carmine", `carm1n`, `carmin`),
}

// PunctuationRules collapse tokenization artifacts around hyphens in
// compound chemical names ("mono - et diglycérides").
var PunctuationRules = []Replacement{
	scoped("prefix-spaced-hyphen", `(mono|di|tri|poly)\s+-\s+`, `${2}- `),
	scoped("prefix-leading-space", `(mono|di|tri|poly)\s+-(\pL)`, `${2}-${3}`),
	scoped("prefix-trailing-spaces", `(mono|di|tri|poly)-\s{2,}`, `${2}- `),
}

// AbbreviationRules expand label abbreviations.
var AbbreviationRules = []Replacement{
	scoped("veg", `veg\.\s*`, `vegetable `),
	scoped("veg-fr", `vég\.\s*`, `végétale `),
	scoped("hydrogenated", `hydrog\.\s*`, `hydrogenated `),
	scoped("emulsifier", `[eé]muls\.\s*`, `emulsifier `),
	scoped("stabiliser", `stab\.\s*`, `stabiliser `),
	scoped("matiere-grasse", `mat\.\s*gr\.\s*`, `matières grasses `),
	scoped("concentrated", `conc\.\s*`, `concentrated `),
}

// Synonyms is checked in order; canonical terms are appended in first-seen
// order. Terms of three runes or fewer only match as standalone tokens.
var Synonyms = []Synonym{
	// pork fat
	{"schweinefett", "pork fat"},
	{"schweineschmalz", "pork fat"},
	{"saindoux", "pork fat"},
	{"manteca de cerdo", "pork fat"},
	{"strutto", "pork fat"},
	{"lard", "pork fat"},

	// pork
	{"schwein", "pork"},
	{"porc", "pork"},
	{"cerdo", "pork"},
	{"maiale", "pork"},
	{"varken", "pork"},
	{"domuz", "pork"},
	{"خنزير", "pork"},
	{"jambon", "pork"},
	{"schinken", "pork"},
	{"speck", "pork"},
	{"bacon", "pork"},
	{"pancetta", "pork"},
	{"ham", "pork"},

	// gelatin
	{"gélatine", "gelatin"},
	{"gelatina", "gelatin"},
	{"jelatin", "gelatin"},

	// wine and vinegar
	{"weinessig", "wine vinegar"},
	{"vinaigre de vin", "wine vinegar"},
	{"aceto di vino", "wine vinegar"},
	{"vinagre de vino", "wine vinegar"},
	{"rotwein", "wine"},
	{"weißwein", "wine"},
	{"weisswein", "wine"},
	{"vino", "wine"},

	// alcohol
	{"alkohol", "alcohol"},
	{"alcool", "alcohol"},
	{"éthanol", "alcohol"},
	{"etanol", "alcohol"},
	{"weinbrand", "alcohol"},
	{"liqueur", "alcohol"},
	{"likör", "alcohol"},
	{"كحول", "alcohol"},
	{"rum", "alcohol"},
	{"gin", "alcohol"},

	// beer
	{"bière", "beer"},
	{"bier", "beer"},
	{"cerveza", "beer"},

	// rennet
	{"présure", "rennet"},
	{"cuajo", "rennet"},
	{"caglio", "rennet"},
	{"lab", "rennet"},

	// carmine
	{"cochenille", "carmine"},
	{"acide carminique", "carmine"},
	{"karmin", "carmine"},
	{"carmin", "carmine"},

	// tallow and beef
	{"rindertalg", "tallow"},
	{"talg", "tallow"},
	{"suif", "tallow"},
	{"sebo", "tallow"},
	{"rindfleisch", "beef"},
	{"bœuf", "beef"},
	{"boeuf", "beef"},
	{"ternera", "beef"},

	// blood
	{"blut", "blood"},
	{"sangre", "blood"},

	// shellac
	{"gomme-laque", "shellac"},
	{"schellack", "shellac"},
	{"goma laca", "shellac"},

	// additives
	{"l-cystéine", "l-cysteine"},
	{"l-cystein", "l-cysteine"},
	{"mono- et diglycérides", "mono- and diglycerides"},
	{"mono- und diglyceride", "mono- and diglycerides"},
	{"mono- y diglicéridos", "mono- and diglycerides"},
}
