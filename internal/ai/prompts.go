package ai

import (
	"strings"
)

const (
	maxCategories = 3
	FallbackTitle = "Material Reciclable"
)

func categoriesPrompt(known []string, description string) string {
	var b strings.Builder
	b.WriteString("Clasifica el siguiente material en UNA O MÁS de estas categorías:\n")
	b.WriteString(strings.Join(known, ", "))
	b.WriteString("\n\n")
	if description != "" {
		b.WriteString("Descripción: ")
		b.WriteString(description)
		b.WriteString("\n")
	}
	b.WriteString("\nResponde ÚNICAMENTE con los nombres de las categorías que mejor coincidan, separados por comas (máximo 3 categorías).")
	return b.String()
}

func descriptionPrompt(short string) string {
	return "Genera una descripción breve y técnica para un material reciclable basada en la siguiente información.\n" +
		"La descripción debe ser concisa (máximo 4 líneas) y enfocarse en:\n" +
		"- Qué se muestra en la imagen\n" +
		"- Cuánto material se puede reciclar o reutilizar\n" +
		"- Cantidad estimada o dimensiones aproximadas\n" +
		"- Potencial de reciclaje o reutilización\n\n" +
		"Descripción breve: " + short +
		"\n\nResponde con un texto conciso y directo, enfocado en datos técnicos más que en lenguaje promocional."
}

func titlePrompt(description string) string {
	return "Genera un título corto y atractivo para un producto de segunda mano basado en la siguiente descripción.\n" +
		"El título debe ser conciso (máximo 6 palabras) y descriptivo, adecuado para un marketplace de materiales reciclables.\n\n" +
		"Descripción: " + description +
		"\n\nResponde ÚNICAMENTE con el título, sin comillas ni puntuación adicional."
}

// MatchCategories maps a free-text model reply onto the known category
// names. Matching ignores case and surrounding punctuation; unknown names
// are dropped and at most three are kept in reply order.
func MatchCategories(reply string, known []string) []string {
	byFold := make(map[string]string, len(known))
	for _, k := range known {
		byFold[strings.ToLower(k)] = k
	}

	out := []string{}
	seen := map[string]bool{}
	for _, tok := range strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == '|' || r == ';'
	}) {
		tok = strings.ToLower(strings.Trim(tok, " \t\r\"'`*.-•"))
		name, ok := byFold[tok]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == maxCategories {
			break
		}
	}
	return out
}

// cleanTitle strips the quotes and trailing punctuation models tend to add
// despite being asked not to.
func cleanTitle(s string) string {
	s = strings.TrimSpace(strings.SplitN(s, "\n", 2)[0])
	s = strings.Trim(s, "\"'`*«»“”")
	s = strings.TrimRight(s, ".!")
	return strings.TrimSpace(s)
}
