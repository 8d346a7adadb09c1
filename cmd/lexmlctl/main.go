package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sapl.leg.br/lexml/internal/auth"
	"sapl.leg.br/lexml/internal/harvest"
	"sapl.leg.br/lexml/internal/lexml"
	"sapl.leg.br/lexml/internal/norma"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lexmlctl",
		Short: "Tools for the SAPL LexML provider",
		Long: `lexmlctl computes LexML URNs, smoke-tests a running OAI-PMH
endpoint and issues admin credentials for the registry API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(urnCmd())
	rootCmd.AddCommand(harvestCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(hashPasswordCmd())
	return rootCmd
}

func urnCmd() *cobra.Command {
	var (
		casa                      norma.CasaLegislativa
		tipo, descricao, numero   string
		esfera                    string
		data, vigencia, publicado string
		ano                       int
	)
	cmd := &cobra.Command{
		Use:   "urn",
		Short: "Print the URN, OAI identifier and epígrafe of a norm",
		Example: `  lexmlctl urn --tipo lei --numero 123 --data 2020-05-14 \
    --sigla CMCG --municipio "Cocalzinho de Goiás" --uf GO --site www.cocalzinho.go.leg.br`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := norma.Norma{
				Numero: numero,
				Ano:    ano,
				Tipo:   norma.TipoNorma{EquivalenteLexML: tipo, Descricao: descricao},
			}
			if n.Tipo.Descricao == "" {
				n.Tipo.Descricao = tipo
			}
			var err error
			if n.Data, err = parseDay("data", data); err != nil {
				return err
			}
			if n.Ano == 0 {
				n.Ano = n.Data.Year()
			}
			if n.DataVigencia, err = optionalDay("vigencia", vigencia); err != nil {
				return err
			}
			if n.DataPublicacao, err = optionalDay("publicacao", publicado); err != nil {
				return err
			}

			cmd.Printf("urn:        %s\n", lexml.URN(&n, &casa, norma.Esfera(strings.ToUpper(esfera))))
			cmd.Printf("identifier: %s\n", lexml.OAIIdentifier(lexml.LocalIdentifier(&n, &casa)))
			cmd.Printf("epigrafe:   %s\n", lexml.Epigrafe(&n, &casa))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&tipo, "tipo", "lei", "LexML type (lei, lei.organica, resolucao, ...)")
	f.StringVar(&descricao, "descricao", "", "Type name used in the epígrafe, e.g. \"Lei Ordinária\"")
	f.StringVar(&numero, "numero", "", "Norm number")
	f.IntVar(&ano, "ano", 0, "Norm year (defaults to the year of --data)")
	f.StringVar(&data, "data", "", "Enactment date, YYYY-MM-DD")
	f.StringVar(&vigencia, "vigencia", "", "Start of validity, YYYY-MM-DD")
	f.StringVar(&publicado, "publicacao", "", "Publication date, YYYY-MM-DD")
	f.StringVar(&esfera, "esfera", string(norma.EsferaMunicipal), "Federative sphere: M, E or F")
	f.StringVar(&casa.Nome, "casa", "", "Legislative house name")
	f.StringVar(&casa.Sigla, "sigla", "", "Legislative house acronym")
	f.StringVar(&casa.Municipio, "municipio", "", "Municipality")
	f.StringVar(&casa.UF, "uf", "", "State")
	f.StringVar(&casa.EnderecoWeb, "site", "", "House web address, e.g. www.cidade.uf.leg.br")
	_ = cmd.MarkFlagRequired("numero")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func harvestCmd() *cobra.Command {
	var (
		req     harvest.Request
		retries int
		timeout time.Duration
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "harvest <endpoint>",
		Short: "Harvest every record from a LexML OAI-PMH endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.BaseURL = args[0]
			client := harvest.NewClient(timeout, retries)

			id, err := client.Identify(cmd.Context(), req.BaseURL)
			if err != nil {
				return fmt.Errorf("identify: %w", err)
			}
			cmd.Printf("Harvesting %s (%s)\n", id.RepositoryName, id.BaseURL)

			started := time.Now()
			stats, err := client.ListRecords(cmd.Context(), req, func(r harvest.Record) error {
				if verbose {
					cmd.Printf("%s\t%s\n", r.Header.Datestamp, r.Header.Identifier)
				}
				return nil
			})
			cmd.Printf("%d records (%d deleted) in %d requests, %s\n",
				stats.Records, stats.Deleted, stats.Requests, time.Since(started).Round(time.Millisecond))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.MetadataPrefix, "prefix", lexml.MetadataName, "Metadata prefix")
	f.StringVar(&req.Set, "set", "", "Restrict to a set, e.g. tipo1")
	f.StringVar(&req.From, "from", "", "Lower datestamp bound")
	f.StringVar(&req.Until, "until", "", "Upper datestamp bound")
	f.IntVar(&retries, "retries", 5, "Retries per request")
	f.DurationVar(&timeout, "timeout", time.Minute, "Per request timeout")
	f.BoolVarP(&verbose, "verbose", "v", false, "Print every record header")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		user  string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin JWT signed with SAPL_LEXML_AUTH_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.GenerateToken(user, roles, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "admin", "Token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAdmin}, "Roles granted by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash for SAPL_LEXML_ADMIN_PASSWORD_HASH",
		Long:  "Hashes the argument, or the first line of stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password on stdin")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			cmd.Println(hash)
			return nil
		},
	}
}

func parseDay(flag, v string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

func optionalDay(flag, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := parseDay(flag, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
