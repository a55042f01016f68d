package label

import (
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// Metadata is the flat record resolved from a label. Every field is always
// present; unresolved fields are "".
type Metadata struct {
	DocumentID            string `json:"documentId"`
	SetID                 string `json:"setId"`
	VersionNumber         string `json:"versionNumber"`
	ProductType           string `json:"productType"`
	Title                 string `json:"title"`
	Manufacturer          string `json:"manufacturer"`
	EffectiveTime         string `json:"effectiveTime"`
	PublishedDate         string `json:"publishedDate"`
	DrugName              string `json:"drugName"`
	RouteOfAdministration string `json:"routeOfAdministration"`
	NDCCode               string `json:"ndcCode"`
	GenericName           string `json:"genericName"`
	DosageForm            string `json:"dosageForm"`
	SubstanceName         string `json:"substanceName"`
	InactiveIngredients   string `json:"inactiveIngredients"`
	Ingredients           string `json:"ingredients"`
	MarketingCategory     string `json:"marketingCategory"`
	ConsumedIn            string `json:"consumedIn"`
	MarketingDate         string `json:"marketingDate"`
}

// Field is one key/value pair of a Metadata record.
type Field struct {
	Key   string
	Value string
}

// Fields lists the record in its fixed order.
func (m *Metadata) Fields() []Field {
	return []Field{
		{"documentId", m.DocumentID},
		{"setId", m.SetID},
		{"versionNumber", m.VersionNumber},
		{"productType", m.ProductType},
		{"title", m.Title},
		{"manufacturer", m.Manufacturer},
		{"effectiveTime", m.EffectiveTime},
		{"publishedDate", m.PublishedDate},
		{"drugName", m.DrugName},
		{"routeOfAdministration", m.RouteOfAdministration},
		{"ndcCode", m.NDCCode},
		{"genericName", m.GenericName},
		{"dosageForm", m.DosageForm},
		{"substanceName", m.SubstanceName},
		{"inactiveIngredients", m.InactiveIngredients},
		{"ingredients", m.Ingredients},
		{"marketingCategory", m.MarketingCategory},
		{"consumedIn", m.ConsumedIn},
		{"marketingDate", m.MarketingDate},
	}
}

// Map returns the record keyed by field name.
func (m *Metadata) Map() map[string]string {
	fields := m.Fields()
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

var (
	activeMoietyPath  = Path{Desc("manufacturedProduct"), Desc("activeMoiety"), Child("activeMoiety"), Child("name")}
	inactivePath      = Path{Desc("manufacturedProduct"), Desc("inactiveIngredient"), Child("inactiveIngredientSubstance"), Child("name")}
	otherIngredients  = Path{Desc("manufacturedProduct"), Desc("ingredient"), Child("ingredientSubstance"), Child("name")}
	marketingDatePath = Path{Desc("manufacturedProduct"), Desc("marketingAct"), Child("effectiveTime"), Child("low")}
)

// resolveMetadata runs one rule per field. Each rule is guarded on its own so
// that a failure leaves that field empty and the rest intact.
func (l *Label) resolveMetadata() Metadata {
	var m Metadata
	t, root := l.tree, l.tree.root

	rules := []struct {
		key string
		dst *string
		fn  func() string
	}{
		{"documentId", &m.DocumentID, func() string { return l.attrOf(root, Path{Child("id")}, "root") }},
		{"setId", &m.SetID, func() string { return l.attrOf(root, Path{Child("setId")}, "root") }},
		{"versionNumber", &m.VersionNumber, func() string { return l.attrOf(root, Path{Child("versionNumber")}, "value") }},
		{"productType", &m.ProductType, func() string { return l.attrOf(root, Path{Child("code")}, "displayName") }},
		{"title", &m.Title, func() string {
			var frags []string
			for _, e := range t.selectAll(root, Path{Child("title")}) {
				frags = append(frags, textFragments(e)...)
			}
			return JoinFragments(frags)
		}},
		{"manufacturer", &m.Manufacturer, func() string {
			return l.leadingTextOf(root, Path{Child("author"), Desc("representedOrganization"), Child("name")})
		}},
		{"effectiveTime", &m.EffectiveTime, func() string {
			return l.dateOf("effectiveTime", root, Path{Child("effectiveTime")})
		}},
		{"drugName", &m.DrugName, func() string {
			return l.leadingTextOf(root, Path{Desc("manufacturedProduct"), Desc("name")})
		}},
		{"routeOfAdministration", &m.RouteOfAdministration, func() string {
			return StripText(l.attrOf(root, Path{Desc("manufacturedProduct"), Desc("formCode")}, "code"))
		}},
		{"ndcCode", &m.NDCCode, func() string {
			return StripText(l.attrOf(root, Path{Desc("manufacturedProduct"), Desc("code")}, "code"))
		}},
		{"genericName", &m.GenericName, func() string {
			return l.leadingTextOf(root, Path{Desc("manufacturedProduct"), Desc("asEntityWithGeneric"), Desc("genericMedicine"), Child("name")})
		}},
		{"dosageForm", &m.DosageForm, func() string {
			return StripText(l.attrOf(root, Path{Desc("manufacturedProduct"), Desc("formCode")}, "displayName"))
		}},
		{"substanceName", &m.SubstanceName, func() string { return l.ingredientList(activeMoietyPath, ", ") }},
		{"inactiveIngredients", &m.InactiveIngredients, func() string { return l.ingredientList(inactivePath, ",") }},
		{"ingredients", &m.Ingredients, func() string { return l.ingredientList(otherIngredients, ", ") }},
		{"marketingCategory", &m.MarketingCategory, func() string {
			return StripText(l.attrOf(root, Path{Desc("manufacturedProduct"), Child("subjectOf"), Child("approval"), Child("code")}, "displayName"))
		}},
		{"consumedIn", &m.ConsumedIn, func() string {
			return StripText(l.attrOf(root, Path{Desc("manufacturedProduct"), Desc("consumedIn"), Child("substanceAdministration"), Child("routeCode")}, "displayName"))
		}},
		{"marketingDate", &m.MarketingDate, func() string {
			return l.dateOf("marketingDate", root, marketingDatePath)
		}},
	}

	for _, r := range rules {
		*r.dst = l.guard(r.key, r.fn)
	}
	// The published date is the effective time under another name.
	m.PublishedDate = m.EffectiveTime

	return m
}

// guard runs fn and converts a panic into an empty value.
func (l *Label) guard(field string, fn func() string) (v string) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Warn("field resolution failed", "field", field, "panic", r)
			v = ""
		}
	}()
	return fn()
}

func (l *Label) attrOf(ctx *etree.Element, p Path, key string) string {
	v, _ := l.tree.firstAttr(ctx, p, key)
	return v
}

func (l *Label) leadingTextOf(ctx *etree.Element, p Path) string {
	e := l.tree.first(ctx, p)
	if e == nil {
		return ""
	}
	return StripText(e.Text())
}

func (l *Label) dateOf(field string, ctx *etree.Element, p Path) string {
	code, ok := l.tree.firstAttr(ctx, p, "value")
	if !ok {
		return ""
	}
	d := NormalizeDate(code)
	if d == "" {
		l.log.Debug("unparseable date code", "field", field, "value", code)
	}
	return d
}

// ingredientList collects every name matched by p, deduplicates after
// stripping, sorts and joins with sep.
func (l *Label) ingredientList(p Path, sep string) string {
	seen := make(map[string]bool)
	var names []string
	for _, e := range l.tree.selectAll(l.tree.root, p) {
		name := StripText(e.Text())
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, sep)
}
