package types

// NotAvailable fills every field the provider did not return.
const NotAvailable = "Não disponível"

// PlatePreview is the free tier of a plate lookup.
type PlatePreview struct {
	Marca  string `json:"marca"`
	Modelo string `json:"modelo"`
	Ano    string `json:"ano"`
	Cor    string `json:"cor"`
}

// Filled returns a copy with blank fields replaced by NotAvailable.
func (p PlatePreview) Filled() PlatePreview {
	return PlatePreview{
		Marca:  orNotAvailable(p.Marca),
		Modelo: orNotAvailable(p.Modelo),
		Ano:    orNotAvailable(p.Ano),
		Cor:    orNotAvailable(p.Cor),
	}
}

func orNotAvailable(v string) string {
	if v == "" {
		return NotAvailable
	}
	return v
}
