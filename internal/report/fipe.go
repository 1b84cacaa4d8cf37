package report

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/placaexpress/vehicle-report-backend/pkg/money"
)

const (
	fipeRetryMessage = "Não foi possível consultar a tabela FIPE agora. Tente novamente em alguns minutos."
	fipeEmptyMessage = "Nenhuma versão FIPE encontrada para este veículo."
)

type FipeVersion struct {
	CodigoFipe    string `json:"codigoFipe"`
	Marca         string `json:"marca"`
	Modelo        string `json:"modelo"`
	AnoModelo     string `json:"anoModelo"`
	Valor         string `json:"valor"`
	MesReferencia string `json:"mesReferencia"`
}

type PriceRange struct {
	Minimo string `json:"minimo"`
	Maximo string `json:"maximo"`
}

// FipeSection is the price-table part of a paid report.
type FipeSection struct {
	Encontrado         bool          `json:"encontrado"`
	Mensagem           string        `json:"mensagem,omitempty"`
	VersaoMaisProvavel FipeVersion   `json:"versaoMaisProvavel"`
	Versoes            []FipeVersion `json:"versoes"`
	FaixaValor         PriceRange    `json:"faixaValor"`
}

func emptyVersion() FipeVersion {
	return FipeVersion{
		CodigoFipe:    NotAvailable,
		Marca:         NotAvailable,
		Modelo:        NotAvailable,
		AnoModelo:     NotAvailable,
		Valor:         NotAvailable,
		MesReferencia: NotAvailable,
	}
}

func notFoundFipe(msg string) FipeSection {
	return FipeSection{
		Mensagem:           msg,
		VersaoMaisProvavel: emptyVersion(),
		Versoes:            []FipeVersion{},
		FaixaValor:         PriceRange{Minimo: NotAvailable, Maximo: NotAvailable},
	}
}

// interpretFipe picks the most likely version for vehicleModel. present is
// false when the sub-call never produced a payload.
func interpretFipe(raw json.RawMessage, present bool, vehicleModel string) FipeSection {
	if !present {
		return notFoundFipe(fipeRetryMessage)
	}

	entries := fipeEntries(parse(raw))
	if len(entries) == 0 {
		return notFoundFipe(fipeEmptyMessage)
	}

	versions := make([]FipeVersion, 0, len(entries))
	for _, entry := range entries {
		versions = append(versions, FipeVersion{
			CodigoFipe:    orNA(entry.first("codigoFipe", "codigo_fipe", "codigo").str()),
			Marca:         orNA(entry.first("marca").str()),
			Modelo:        orNA(entry.first("modelo", "versao", "texto_modelo").str()),
			AnoModelo:     orNA(entry.first("anoModelo", "ano_modelo", "ano").str()),
			Valor:         normalizePrice(entry.first("valor", "preco", "texto_valor").str()),
			MesReferencia: orNA(entry.first("mesReferencia", "mes_referencia", "referencia").str()),
		})
	}

	return FipeSection{
		Encontrado:         true,
		VersaoMaisProvavel: versions[bestVersion(versions, vehicleModel)],
		Versoes:            versions,
		FaixaValor:         priceRange(versions),
	}
}

// fipeEntries accepts a top-level array or an object wrapping one.
func fipeEntries(root node) []node {
	if items := root.array(); items != nil {
		return objects(items)
	}
	for _, key := range []string{"fipe", "versoes", "dados", "data", "resultado"} {
		if items := root.get(key).array(); items != nil {
			return objects(items)
		}
	}
	if root.first("codigoFipe", "codigo_fipe", "valor").str() != "" {
		return []node{root}
	}
	return nil
}

func objects(items []node) []node {
	out := items[:0]
	for _, item := range items {
		if _, ok := item.v.(map[string]any); ok {
			out = append(out, item)
		}
	}
	return out
}

// bestVersion returns the index of the first version whose label contains
// the model, or is contained by it, ignoring case. It falls back to 0.
func bestVersion(versions []FipeVersion, vehicleModel string) int {
	model := strings.ToLower(strings.TrimSpace(vehicleModel))
	if model == "" || model == strings.ToLower(NotAvailable) {
		return 0
	}
	for i, v := range versions {
		label := strings.ToLower(v.Modelo)
		if label == strings.ToLower(NotAvailable) {
			continue
		}
		if strings.Contains(label, model) || strings.Contains(model, label) {
			return i
		}
	}
	return 0
}

func priceRange(versions []FipeVersion) PriceRange {
	out := PriceRange{Minimo: NotAvailable, Maximo: NotAvailable}
	if len(versions) < 2 {
		return out
	}
	var lo, hi decimal.Decimal
	seen := false
	for _, v := range versions {
		amount, err := money.ParseBRL(v.Valor)
		if err != nil {
			continue
		}
		if !seen || amount.LessThan(lo) {
			lo = amount
		}
		if !seen || amount.GreaterThan(hi) {
			hi = amount
		}
		seen = true
	}
	if seen {
		out.Minimo = money.FormatBRL(lo)
		out.Maximo = money.FormatBRL(hi)
	}
	return out
}

// normalizePrice renders any parseable amount as "R$ 1.234,56".
func normalizePrice(value string) string {
	if value == "" {
		return NotAvailable
	}
	amount, err := money.ParseBRL(value)
	if err != nil {
		return value
	}
	return money.FormatBRL(amount)
}
