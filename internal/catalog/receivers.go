package catalog

import "slices"

// Company is a receiving business listed in the receivers directory.
type Company struct {
	ID          int      `json:"id"`
	Name        string   `json:"nombre"`
	Logo        string   `json:"logo"`
	Description string   `json:"descripcion"`
	Categories  []string `json:"categorias"`
	Location    string   `json:"ubicacion"`
	Contact     string   `json:"contacto"`
}

const placeholderLogo = "https://via.placeholder.com/150"

var companies = []Company{
	{
		ID:          1,
		Name:        "EcoMuebles",
		Logo:        placeholderLogo,
		Description: "Empresa dedicada a la transformación de madera y muebles viejos en piezas renovadas.",
		Categories:  []string{"Madera", "Muebles", "Textiles"},
		Location:    "Santiago Centro",
		Contact:     "contacto@ecomuebles.cl",
	},
	{
		ID:          2,
		Name:        "MetalArte",
		Logo:        placeholderLogo,
		Description: "Especialistas en dar nueva vida a todo tipo de metales y chatarra convirtiéndolos en arte funcional.",
		Categories:  []string{"Chatarra", "Metales", "Electrónicos"},
		Location:    "Providencia",
		Contact:     "info@metalarte.cl",
	},
	{
		ID:          3,
		Name:        "PlastiRenova",
		Logo:        placeholderLogo,
		Description: "Transformamos plásticos desechados en nuevos productos útiles para el hogar y la oficina.",
		Categories:  []string{"Plástico", "PET", "Envases"},
		Location:    "Ñuñoa",
		Contact:     "hola@plastirenova.cl",
	},
	{
		ID:          4,
		Name:        "TextilCreativo",
		Logo:        placeholderLogo,
		Description: "Damos nueva vida a textiles usados creando prendas únicas y accesorios sostenibles.",
		Categories:  []string{"Textiles", "Ropa", "Telas"},
		Location:    "Las Condes",
		Contact:     "contacto@textilcreativo.cl",
	},
	{
		ID:          5,
		Name:        "ElectroFix",
		Logo:        placeholderLogo,
		Description: "Reparamos y renovamos aparatos electrónicos dándoles una segunda oportunidad.",
		Categories:  []string{"Electrónicos", "Reparables", "Eléctricos"},
		Location:    "La Florida",
		Contact:     "info@electrofix.cl",
	},
}

func (c Company) clone() Company {
	c.Categories = slices.Clone(c.Categories)
	return c
}

// Companies returns a copy of the directory in display order.
func Companies() []Company {
	out := make([]Company, 0, len(companies))
	for _, c := range companies {
		out = append(out, c.clone())
	}
	return out
}

// CompaniesByCategory keeps companies that accept category. An empty
// category returns the whole directory.
func CompaniesByCategory(category string) []Company {
	if category == "" {
		return Companies()
	}
	out := make([]Company, 0, len(companies))
	for _, c := range companies {
		for _, cc := range c.Categories {
			if cc == category {
				out = append(out, c.clone())
				break
			}
		}
	}
	return out
}

func CompanyCategories() []string {
	set := map[string]struct{}{}
	for _, c := range companies {
		for _, cc := range c.Categories {
			set[cc] = struct{}{}
		}
	}
	return sortedKeys(set)
}
