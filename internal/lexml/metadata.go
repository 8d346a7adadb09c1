package lexml

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"sapl.leg.br/lexml/internal/norma"
)

const (
	Namespace    = "http://www.lexml.gov.br/oai_lexml"
	SchemaURL    = "http://projeto.lexml.gov.br/esquemas/oai_lexml.xsd"
	MetadataName = "oai_lexml"

	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

var meses = [12]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

type document struct {
	XMLName             xml.Name `xml:"http://www.lexml.gov.br/oai_lexml LexML"`
	XSI                 string   `xml:"xmlns:xsi,attr"`
	SchemaLocation      string   `xml:"xsi:schemaLocation,attr"`
	Items               []item   `xml:"Item"`
	DocumentoIndividual string   `xml:"DocumentoIndividual"`
	Epigrafe            string   `xml:"Epigrafe"`
	Ementa              string   `xml:"Ementa"`
	Indexacao           string   `xml:"Indexacao,omitempty"`
}

type item struct {
	Formato      string `xml:"formato,attr"`
	IDPublicador int    `xml:"idPublicador,attr"`
	Tipo         string `xml:"tipo,attr"`
	URL          string `xml:",chardata"`
}

// RenderMetadata renders the oai_lexml document of a norm. It returns nil
// without error when the norm or the publisher is absent.
func RenderMetadata(urn string, n *norma.Norma, casa *norma.CasaLegislativa, pub *norma.Publicador, baseURL string) ([]byte, error) {
	if n == nil || pub == nil {
		return nil, nil
	}
	detalhe := DetailURL(baseURL, n)

	conteudo := item{Formato: "text/html", IDPublicador: pub.IDPublicador, Tipo: "conteudo", URL: detalhe}
	if n.TextoIntegral != "" {
		conteudo.URL = joinURL(baseURL, n.TextoIntegral)
		conteudo.Formato = "application/pdf"
	}

	doc := document{
		XSI:            xsiNamespace,
		SchemaLocation: Namespace + " " + SchemaURL,
		Items: []item{
			conteudo,
			{Formato: "text/html", IDPublicador: pub.IDPublicador, Tipo: "metadado", URL: detalhe},
		},
		DocumentoIndividual: urn,
		Epigrafe:            Epigrafe(n, casa),
		Ementa:              n.Ementa,
		Indexacao:           strings.TrimSpace(n.Indexacao),
	}
	return xml.Marshal(doc)
}

// DetailURL is the public page of a norm.
func DetailURL(baseURL string, n *norma.Norma) string {
	return strings.TrimRight(baseURL, "/") + "/norma/" + strconv.FormatInt(n.ID, 10)
}

func joinURL(baseURL, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(baseURL, "/") + path
}

// Epigrafe is the citation header of a norm.
func Epigrafe(n *norma.Norma, casa *norma.CasaLegislativa) string {
	if n == nil {
		return ""
	}
	var municipio, uf string
	if casa != nil {
		municipio, uf = casa.Municipio, casa.UF
	}
	desc := n.Tipo.Descricao
	ano := strconv.Itoa(n.Ano)
	switch n.Tipo.EquivalenteLexML {
	case norma.LexMLLeiOrganica:
		return desc + " de " + municipio + " - " + uf + ", de " + ano
	case norma.LexMLConstituicao:
		return desc + " do Estado de " + municipio + ", de " + ano
	default:
		return desc + " n° " + n.Numero + ", de " + SpellDate(n.Data)
	}
}

// SpellDate writes a date as "DD de <Mês> de YYYY". The zero time yields "".
func SpellDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02") + " de " + meses[t.Month()-1] + " de " + t.Format("2006")
}

// SpellDateString is SpellDate for a "YYYY-MM-DD" string; empty or
// malformed input yields "".
func SpellDateString(s string) string {
	t, err := time.Parse(isoDate, strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return SpellDate(t)
}
