package label

import "testing"

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"20210315", "Mar 15, 2021"},
		{"20210101", "Jan 01, 2021"},
		{"20200229", "Feb 29, 2020"},
		{"20210315120000-0500", "Mar 15, 2021"},
		{"20211345", ""},
		{"20210230", ""},
		{"20210001", ""},
		{"00000101", ""},
		{"2021031", ""},
		{"2021-03-15", ""},
		{"abcdefgh", ""},
		{"+0210315", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeDate(tt.in); got != tt.want {
			t.Errorf("NormalizeDate(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestSectionKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INDICATIONS & USAGE SECTION", "indicationsUsageSection"},
		{"DOSAGE AND ADMINISTRATION", "dosageAndAdministration"},
		{"Warnings", "warnings"},
		{"Pediatric Use", "pediatricUse"},
		{"section2", "section2"},
		{"1.1 Hypertension", "11Hypertension"},
		{"PACKAGE LABEL.PRINCIPAL DISPLAY PANEL", "packageLabelPrincipalDisplayPanel"},
		{"INFORMATION FOR PATIENT'S", "informationForPatientS"},
		{"SECTION 2ND", "section2Nd"},
		{"USE IN SPECIFIC POPULATIONS", "useInSpecificPopulations"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SectionKey(tt.in); got != tt.want {
			t.Errorf("SectionKey(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestStripText(t *testing.T) {
	if got := StripText("\n\t  Acme Inc. \t\n"); got != "Acme Inc." {
		t.Errorf("expected %q, got %q", "Acme Inc.", got)
	}
	if got := StripText(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestJoinFragments_Idempotent(t *testing.T) {
	first := JoinFragments([]string{"\n  LISINOPRIL", " tablets ", "\t", ""})
	if first != "LISINOPRIL tablets" {
		t.Fatalf("expected %q, got %q", "LISINOPRIL tablets", first)
	}
	if again := JoinFragments([]string{first}); again != first {
		t.Errorf("expected idempotent result %q, got %q", first, again)
	}
}

func TestASCIIOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"café", "caf"},
		{"≥ 10 mg", " 10 mg"},
		{"µg/kg", "g/kg"},
	}
	for _, tt := range tests {
		if got := ASCIIOnly(tt.in); got != tt.want {
			t.Errorf("ASCIIOnly(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
