package ai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"EcoMarket/internal/ai"
)

func TestMatchCategories(t *testing.T) {
	known := []string{"Cartón", "Madera", "Metales", "Muebles", "Papel"}

	cases := map[string][]string{
		"Madera, Muebles":                {"Madera", "Muebles"},
		"madera,MUEBLES, madera":         {"Madera", "Muebles"},
		"**Metales**, Vidrio, Papel.":    {"Metales", "Papel"},
		"Cartón, Papel, Madera, Muebles": {"Cartón", "Papel", "Madera"},
		"- Papel\n- Cartón":              {"Papel", "Cartón"},
		"No sé qué material es este":     {},
		"":                               {},
	}
	for reply, want := range cases {
		assert.Equal(t, want, ai.MatchCategories(reply, known), reply)
	}
}
