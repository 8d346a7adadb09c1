// Package lexml builds LexML identifiers, URNs and oai_lexml metadata
// documents for legal norms.
package lexml

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sapl.leg.br/lexml/internal/norma"
)

const isoDate = "2006-01-02"

// connectors are collapsed into "." inside uf/municipio tokens.
var connectors = []string{"de", "da", "das", "do", "dos"}

// OAIIdentifier prefixes a repository-scoped local id with "oai:".
// An empty local id yields "" (no record).
func OAIIdentifier(localID string) string {
	if localID == "" {
		return ""
	}
	return "oai:" + localID
}

// InternalPrefix derives "<sigla>.<domain>:sapl/" where domain is the
// house web address without its first label.
func InternalPrefix(casa *norma.CasaLegislativa) string {
	if casa == nil {
		return ""
	}
	host := strings.TrimSpace(casa.EnderecoWeb)
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Hostname()
		}
	}
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	domain := strings.Join(labels[1:], ".")
	return strings.ToLower(casa.Sigla) + "." + domain + ":sapl/"
}

// LocalIdentifier is the repository-scoped id of a norm:
// InternalPrefix + "<lexml type>;<ano>;<numero>".
func LocalIdentifier(n *norma.Norma, casa *norma.CasaLegislativa) string {
	if n == nil {
		return ""
	}
	return InternalPrefix(casa) + n.Tipo.EquivalenteLexML + ";" + strconv.Itoa(n.Ano) + ";" + n.Numero
}

// URN builds the LexML URN of a norm:
//
//	urn:lex:br;<uf>[;<municipio>]:<jurisdiction>:<type>:<date>;<number-or-year>[@<vigencia>;publicacao;<publicacao>]
func URN(n *norma.Norma, casa *norma.CasaLegislativa, esfera norma.Esfera) string {
	if n == nil {
		return ""
	}
	var municipio, uf string
	if casa != nil {
		municipio = normalizeToken(casa.Municipio)
		uf = normalizeToken(casa.UF)
	}
	tipo := n.Tipo.EquivalenteLexML

	var b strings.Builder
	b.WriteString("urn:lex:br;")
	switch esfera {
	case norma.EsferaMunicipal:
		b.WriteString(uf + ";")
		b.WriteString(municipio + ":")
		if tipo == norma.LexMLRegimentoInterno || tipo == norma.LexMLResolucao {
			b.WriteString("camara.municipal:")
		} else {
			b.WriteString(esfera.Name() + ":")
		}
	case norma.EsferaEstadual:
		b.WriteString(uf + ":")
		b.WriteString(esfera.Name() + ":")
	default:
		b.WriteString(":")
	}

	b.WriteString(tipo + ":")
	b.WriteString(n.Data.Format(isoDate) + ";")

	if tipo == norma.LexMLLeiOrganica || tipo == norma.LexMLConstituicao {
		b.WriteString(strconv.Itoa(n.Ano))
	} else {
		b.WriteString(n.Numero)
	}

	switch {
	case n.DataVigencia != nil && n.DataPublicacao != nil:
		b.WriteString("@" + n.DataVigencia.Format(isoDate) + ";publicacao;" + n.DataPublicacao.Format(isoDate))
	case n.DataPublicacao != nil:
		b.WriteString("@inicio.vigencia;publicacao;" + n.DataPublicacao.Format(isoDate))
	}
	return b.String()
}

// normalizeToken lower-cases a place name and joins its words with ".",
// dropping connector words. Replacement repeats until nothing changes so
// adjacent connectors ("a de da b") collapse too.
func normalizeToken(s string) string {
	s = cases.Lower(language.BrazilianPortuguese).String(s)
	s = strings.Join(strings.Fields(s), ".")
	for {
		prev := s
		for _, c := range connectors {
			s = strings.ReplaceAll(s, "."+c+".", ".")
		}
		if s == prev {
			return s
		}
	}
}
