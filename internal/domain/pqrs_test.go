package domain

import "testing"

func TestParseDepartment_CatalogNamesAndCodes(t *testing.T) {
	for _, d := range Departments() {
		for _, input := range []string{d.Key, d.Name, d.Code} {
			got, ok := ParseDepartment(input)
			if !ok {
				t.Errorf("ParseDepartment(%q) found nothing, want %s", input, d.Code)
				continue
			}
			if got.Code != d.Code {
				t.Errorf("ParseDepartment(%q) = %s, want %s", input, got.Code, d.Code)
			}
		}
	}
}

func TestParseDepartment_FreeText(t *testing.T) {
	cases := map[string]string{
		"BIBLIOTECA":                "BIB",
		"  seguridad ":              "SEG",
		"problema en la biblioteca": "BIB",
		"es de tecnología":          "TEC",
		"area tec por favor":        "TEC",
		"ase":                       "ASE",
		"departamento: adm":         "ADM",
	}
	for input, want := range cases {
		got, ok := ParseDepartment(input)
		if !ok || got.Code != want {
			t.Errorf("ParseDepartment(%q) = %q (found=%v), want %s", input, got.Code, ok, want)
		}
	}
}

func TestParseDepartment_NoMatch(t *testing.T) {
	for _, input := range []string{"", "   ", "8", "0", "hola", "tecnico"} {
		if d, ok := ParseDepartment(input); ok {
			t.Errorf("ParseDepartment(%q) = %s, want no match", input, d.Code)
		}
	}
}
