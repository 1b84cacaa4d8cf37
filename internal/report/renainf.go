package report

import "encoding/json"

const (
	renainfRetryMessage = "Não foi possível consultar o RENAINF agora. Tente novamente em alguns minutos."
	renainfDisclaimer   = "As infrações listadas podem já ter sido quitadas; confirme a situação junto ao órgão autuador."
)

type Infraction struct {
	Descricao     string `json:"descricao"`
	AutoInfracao  string `json:"autoInfracao"`
	Valor         string `json:"valor"`
	OrgaoAutuador string `json:"orgaoAutuador"`
	DataInfracao  string `json:"dataInfracao"`
	Municipio     string `json:"municipio"`
}

// RenainfSection is the infractions part of a paid report.
type RenainfSection struct {
	Encontrado      bool         `json:"encontrado"`
	Mensagem        string       `json:"mensagem,omitempty"`
	PossuiInfracoes bool         `json:"possuiInfracoes"`
	Infracoes       []Infraction `json:"infracoes"`
	Aviso           string       `json:"aviso"`
}

func interpretRenainf(raw json.RawMessage, present bool) RenainfSection {
	if !present {
		return RenainfSection{
			Mensagem:  renainfRetryMessage,
			Infracoes: []Infraction{},
			Aviso:     renainfDisclaimer,
		}
	}

	root := parse(raw)
	items := root.first("infracoes", "infractions", "autuacoes").array()
	infractions := make([]Infraction, 0, len(items))
	for _, item := range items {
		if _, ok := item.v.(map[string]any); !ok {
			continue
		}
		infractions = append(infractions, Infraction{
			Descricao:     orNA(item.first("descricao", "infracao").str()),
			AutoInfracao:  orNA(item.first("autoInfracao", "auto_infracao", "numeroAuto").str()),
			Valor:         normalizePrice(item.first("valor", "valorInfracao").str()),
			OrgaoAutuador: orNA(item.first("orgaoAutuador", "orgao_autuador", "orgao").str()),
			DataInfracao:  orNA(item.first("dataInfracao", "data_infracao", "data").str()),
			Municipio:     orNA(item.first("municipio", "local").str()),
		})
	}

	has, ok := root.first("possui_infracoes", "possuiInfracoes").boolish()
	if !ok {
		has = len(infractions) > 0
	}

	return RenainfSection{
		Encontrado:      true,
		PossuiInfracoes: has,
		Infracoes:       infractions,
		Aviso:           renainfDisclaimer,
	}
}
