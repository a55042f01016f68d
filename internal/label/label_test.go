package label

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/dgallion1/splgest/internal/markup"
)

func loadFixture(t *testing.T) *Result {
	t.Helper()
	raw, err := os.ReadFile("testdata/lisinopril.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	res, err := Extract(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func TestExtract_Metadata(t *testing.T) {
	res := loadFixture(t)

	want := map[string]string{
		"documentId":            "d1b64b4e-5c2a-4c1e-9a0f-3f6f1c2b0001",
		"setId":                 "7c0f7d3e-set-0042",
		"versionNumber":         "7",
		"productType":           "HUMAN PRESCRIPTION DRUG LABEL",
		"title":                 "LISINOPRIL tablets, for oral use",
		"manufacturer":          "Acme Pharma Inc.",
		"effectiveTime":         "Mar 15, 2021",
		"publishedDate":         "Mar 15, 2021",
		"drugName":              "Lisinopril",
		"routeOfAdministration": "C42998",
		"ndcCode":               "0000-1111",
		"genericName":           "lisinopril",
		"dosageForm":            "TABLET",
		"substanceName":         "LISINOPRIL ANHYDROUS",
		"inactiveIngredients":   "MANNITOL,STARCH, CORN",
		"ingredients":           "CALCIUM PHOSPHATE, LISINOPRIL, MAGNESIUM STEARATE",
		"marketingCategory":     "ANDA",
		"consumedIn":            "ORAL",
		"marketingDate":         "Jul 01, 2002",
	}

	got := res.Metadata.Map()
	if len(got) != len(want) {
		t.Errorf("expected %d fields, got %d", len(want), len(got))
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s: expected %q, got %q", k, w, got[k])
		}
	}
}

func TestExtract_Sections(t *testing.T) {
	res := loadFixture(t)

	want := map[string]string{
		"splProductDataElementsSection": "SPL PRODUCT DATA ELEMENTS SECTION\n\n",
		"indicationsUsageSection":       "INDICATIONS & USAGE SECTION\nLisinopril is indicated for the treatment of hypertension.\n1.1 Hypertension\nLower blood pressure.\n",
		"section2":                      "section2\nCaf dose  10 mg\n",
		"warnings":                      "WARNINGS\nFirst warning.\n5.1 More Warnings\nSecond warning.\n",
	}
	if len(res.Sections) != len(want) {
		t.Errorf("expected %d sections, got %d: %v", len(want), len(res.Sections), res.SectionKeys)
	}
	for k, w := range want {
		if res.Sections[k] != w {
			t.Errorf("%s: expected %q, got %q", k, w, res.Sections[k])
		}
	}

	order := []string{"splProductDataElementsSection", "indicationsUsageSection", "section2", "warnings"}
	if strings.Join(res.SectionKeys, ",") != strings.Join(order, ",") {
		t.Errorf("expected key order %v, got %v", order, res.SectionKeys)
	}
}

func TestExtract_JSONCarriesEveryField(t *testing.T) {
	res, err := Extract([]byte(`<document><title/></document>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, f := range res.Fields() {
		v, ok := out[f.Key]
		if !ok {
			t.Errorf("expected key %q in output", f.Key)
			continue
		}
		if s, ok := v.(string); !ok || s != "" {
			t.Errorf("%s: expected empty string, got %#v", f.Key, v)
		}
	}
	if _, ok := out["sections"]; !ok {
		t.Error("expected sections key")
	}
	if _, ok := out["sectionText"]; !ok {
		t.Error("expected sectionText key")
	}
}

func TestExtract_MissingIdentifier(t *testing.T) {
	res, err := Extract([]byte(`<document><setId root="s"/><id extension="no-root"/></document>`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DocumentID != "" {
		t.Errorf("expected empty documentId, got %q", res.DocumentID)
	}
	if res.SetID != "s" {
		t.Errorf("expected setId %q, got %q", "s", res.SetID)
	}
}

func TestExtract_IngredientsDeduplicatedAcrossWhitespace(t *testing.T) {
	doc := `<document><manufacturedProduct>
<ingredient><ingredientSubstance><name>ZINC</name></ingredientSubstance></ingredient>
<ingredient><ingredientSubstance><name>
	ZINC </name></ingredientSubstance></ingredient>
<ingredient><ingredientSubstance><name>ALOE</name></ingredientSubstance></ingredient>
<ingredient><ingredientSubstance><name/></ingredientSubstance></ingredient>
</manufacturedProduct></document>`
	res, err := Extract([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Ingredients != "ALOE, ZINC" {
		t.Errorf("expected %q, got %q", "ALOE, ZINC", res.Ingredients)
	}
	if res.InactiveIngredients != "" {
		t.Errorf("expected no inactive ingredients, got %q", res.InactiveIngredients)
	}
}

func TestExtract_SectionCollisionConcatenates(t *testing.T) {
	doc := `<document><component><structuredBody>
<component><section><code displayName="Warnings"/><text>one</text></section></component>
<component><section><code displayName="WARNINGS"/><title>Again</title><text>two</text></section></component>
</structuredBody></component></document>`
	res, err := Extract([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(res.Sections))
	}
	want := "Warnings\none\nAgain\ntwo\n"
	if res.Sections["warnings"] != want {
		t.Errorf("expected %q, got %q", want, res.Sections["warnings"])
	}
}

func TestExtract_PlaceholderTitles(t *testing.T) {
	doc := `<document><component><structuredBody>
<component><section><code displayName="A"/></section></component>
<component><section><text>no code here</text></section></component>
<component><section><text>nor here</text></section></component>
</structuredBody></component></document>`
	res, err := Extract([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.Sections["section1"]; !ok {
		t.Errorf("expected section1 placeholder, got keys %v", res.SectionKeys)
	}
	got, ok := res.Sections["section2"]
	if !ok {
		t.Fatalf("expected section2 placeholder, got keys %v", res.SectionKeys)
	}
	if !strings.HasPrefix(got, "section2\nnor here") {
		t.Errorf("expected placeholder title in body, got %q", got)
	}
}

func TestExtract_NestedSectionsEndToEnd(t *testing.T) {
	doc := `<document><component><structuredBody>
<component><section><code displayName="Indications"/><text>Use for X</text></section></component>
<component><section><code displayName="Indications"/><title>Indications again</title><text>Also Y</text>
<component><section><title>Pediatric Use</title><text>Not recommended</text></section></component>
</section></component>
</structuredBody></component></document>`
	res, err := Extract([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantSection := "Indications\nUse for X\nIndications again\nAlso Y\nPediatric Use\nNot recommended\n"
	if res.Sections["indications"] != wantSection {
		t.Errorf("expected section %q, got %q", wantSection, res.Sections["indications"])
	}

	// Each section appears once as "name\ntext" and once as its composite block.
	wantFull := "Indications\nUse for X" +
		"Indications\nUse for X\n" +
		"Indications\nAlso Y" +
		"Indications again\nAlso Y\nPediatric Use\nNot recommended\n"
	if res.SectionText != wantFull {
		t.Errorf("expected full text %q, got %q", wantFull, res.SectionText)
	}

	got := res.Sections["indications"]
	last := -1
	for _, s := range []string{"Use for X", "Also Y", "Pediatric Use", "Not recommended"} {
		i := strings.Index(got, s)
		if i <= last {
			t.Errorf("expected %q after previous fragment in %q", s, got)
		}
		last = i
	}
}

func TestExtract_DeepNesting(t *testing.T) {
	doc := `<document><component><structuredBody><component><section>
<code displayName="Top"/><text>t0</text>
<component><section><title>L1</title><text>t1</text>
<component><section><title>L2</title><text>t2</text>
<component><section><text>t3</text></section></component>
</section></component>
</section></component>
<component><section><title>L1b</title></section></component>
</section></component></structuredBody></component></document>`
	res, err := Extract([]byte(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Top\nt0\nL1\nt1\nL2\nt2\n\nt3\nL1b\n\n"
	if res.Sections["top"] != want {
		t.Errorf("expected %q, got %q", want, res.Sections["top"])
	}
}

func TestExtract_ParseError(t *testing.T) {
	_, err := Extract([]byte(`<document><id></document>`))
	var perr *markup.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *markup.ParseError, got %v", err)
	}
}

func TestProcess_NoRoot(t *testing.T) {
	_, err := FromDocument(etree.NewDocument()).Process()
	var eerr *ExtractionError
	if !errors.As(err, &eerr) {
		t.Fatalf("expected *ExtractionError, got %v", err)
	}
	if eerr.Unwrap() == nil {
		t.Error("expected wrapped cause")
	}
}

func TestGuard_RecoversFieldPanic(t *testing.T) {
	l := FromDocument(etree.NewDocument())
	got := l.guard("boom", func() string { panic("rule failed") })
	if got != "" {
		t.Errorf("expected empty value after panic, got %q", got)
	}
}
