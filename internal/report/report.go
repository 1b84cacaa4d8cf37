// Package report turns stored provider payloads into the flat report served
// to buyers. Everything here is pure: no I/O, no clocks, no panics on
// malformed input.
package report

import (
	"encoding/json"

	"github.com/placaexpress/vehicle-report-backend/pkg/db/models"
	"github.com/placaexpress/vehicle-report-backend/pkg/types"
)

// NotAvailable fills every field the provider did not return.
const NotAvailable = types.NotAvailable

type TechnicalData struct {
	Combustivel string `json:"combustivel"`
	Potencia    string `json:"potencia"`
	Cilindradas string `json:"cilindradas"`
	TipoVeiculo string `json:"tipoVeiculo"`
	Especie     string `json:"especie"`
	Carroceria  string `json:"carroceria"`
	Motor       string `json:"motor"`
	Procedencia string `json:"procedencia"`
}

type LoadData struct {
	CapacidadeCarga string `json:"capacidadeCarga"`
	PesoBrutoTotal  string `json:"pesoBrutoTotal"`
	CapMaxTracao    string `json:"capMaxTracao"`
	Eixos           string `json:"eixos"`
	Passageiros     string `json:"passageiros"`
}

// NormalizedReport is the paid report. Fipe and Renainf are nil when the
// report is assembled without enrichment.
type NormalizedReport struct {
	Placa         string          `json:"placa"`
	Marca         string          `json:"marca"`
	Modelo        string          `json:"modelo"`
	Ano           string          `json:"ano"`
	AnoFabricacao string          `json:"anoFabricacao"`
	AnoModelo     string          `json:"anoModelo"`
	Cor           string          `json:"cor"`
	Municipio     string          `json:"municipio"`
	UF            string          `json:"uf"`
	Chassi        string          `json:"chassi"`
	Situacao      string          `json:"situacao"`
	DadosTecnicos TechnicalData   `json:"dadosTecnicos"`
	DadosCarga    LoadData        `json:"dadosCarga"`
	Fipe          *FipeSection    `json:"fipe,omitempty"`
	Renainf       *RenainfSection `json:"renainf,omitempty"`
}

// Preview extracts the free four-field tier from a basic lookup payload.
func Preview(raw json.RawMessage) types.PlatePreview {
	v := vehicle(parse(raw))
	return types.PlatePreview{
		Marca:  v.first("marca", "fabricante").str(),
		Modelo: v.first("modelo", "marcaModelo").str(),
		Ano:    yearLabel(v),
		Cor:    v.first("cor", "corVeiculo").str(),
	}.Filled()
}

// Assemble builds the report of a plate query. A nil enrichment yields the
// basic paid fields only.
func Assemble(pq models.PlateQuery, enrichment *models.Enrichment) NormalizedReport {
	out := basic(pq.Plate, parse(pq.RawResponse))
	if enrichment != nil {
		fipe := interpretFipe(enrichment.FipeRaw, enrichment.HasFipe(), out.Modelo)
		renainf := interpretRenainf(enrichment.RenainfRaw, enrichment.HasRenainf())
		out.Fipe = &fipe
		out.Renainf = &renainf
	}
	return out
}

// FromProtocol builds a report from a finished full-report protocol, which
// nests the basic, FIPE and RENAINF payloads in one document.
func FromProtocol(plate string, data json.RawMessage) NormalizedReport {
	root := parse(data)
	out := basic(plate, root)

	fipeRaw := rawOf(root.first("fipe", "precoFipe", "tabelaFipe"))
	renainfRaw := rawOf(root.first("renainf", "infracoes_renainf"))
	fipe := interpretFipe(fipeRaw, len(fipeRaw) > 0, out.Modelo)
	renainf := interpretRenainf(renainfRaw, len(renainfRaw) > 0)
	out.Fipe = &fipe
	out.Renainf = &renainf
	return out
}

func basic(plate string, root node) NormalizedReport {
	v := vehicle(root)
	tech := v.first("dadosTecnicos", "dados_tecnicos")
	load := v.first("dadosCarga", "dados_carga")

	placa := v.get("placa").str()
	if placa == "" {
		placa = plate
	}

	return NormalizedReport{
		Placa:         orNA(placa),
		Marca:         orNA(v.first("marca", "fabricante").str()),
		Modelo:        orNA(v.first("modelo", "marcaModelo").str()),
		Ano:           orNA(yearLabel(v)),
		AnoFabricacao: orNA(v.first("anoFabricacao", "ano_fabricacao").str()),
		AnoModelo:     orNA(v.first("anoModelo", "ano_modelo").str()),
		Cor:           orNA(v.first("cor", "corVeiculo").str()),
		Municipio:     orNA(v.first("municipio", "cidade").str()),
		UF:            orNA(v.get("uf").str()),
		Chassi:        orNA(v.get("chassi").str()),
		Situacao:      orNA(v.first("situacao", "situacaoVeiculo").str()),
		DadosTecnicos: TechnicalData{
			Combustivel: orNA(tech.first("combustivel").str()),
			Potencia:    orNA(tech.first("potencia").str()),
			Cilindradas: orNA(tech.first("cilindradas").str()),
			TipoVeiculo: orNA(tech.first("tipoVeiculo", "tipo").str()),
			Especie:     orNA(tech.first("especie").str()),
			Carroceria:  orNA(tech.first("carroceria").str()),
			Motor:       orNA(tech.first("motor").str()),
			Procedencia: orNA(tech.first("procedencia").str()),
		},
		DadosCarga: LoadData{
			CapacidadeCarga: orNA(load.first("capacidadeCarga").str()),
			PesoBrutoTotal:  orNA(load.first("pesoBrutoTotal").str()),
			CapMaxTracao:    orNA(load.first("capMaxTracao").str()),
			Eixos:           orNA(load.first("eixos").str()),
			Passageiros:     orNA(load.first("passageiros", "capacidadePassageiros").str()),
		},
	}
}

// vehicle unwraps the payloads that nest the vehicle under a key.
func vehicle(root node) node {
	for _, key := range []string{"veiculo", "dados", "data"} {
		if inner := root.get(key); inner.isContainer() && !inner.get("placa").missing() {
			return inner
		}
	}
	return root
}

// yearLabel is "fab/model" when both years exist and differ, else whichever
// single year is present.
func yearLabel(v node) string {
	fab := v.first("anoFabricacao", "ano_fabricacao").str()
	mod := v.first("anoModelo", "ano_modelo").str()
	switch {
	case fab != "" && mod != "" && fab != mod:
		return fab + "/" + mod
	case mod != "":
		return mod
	case fab != "":
		return fab
	}
	return v.get("ano").str()
}

func rawOf(n node) json.RawMessage {
	if n.missing() {
		return nil
	}
	b, err := json.Marshal(n.v)
	if err != nil {
		return nil
	}
	return b
}
