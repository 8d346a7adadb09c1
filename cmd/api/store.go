package main

import (
	"context"
	"fmt"

	"sapl.leg.br/lexml/internal/config"
	"sapl.leg.br/lexml/internal/norma"
	"sapl.leg.br/lexml/internal/store/pg"
	"sapl.leg.br/lexml/internal/store/sqlite"
)

// openStore connects the configured backend. The memory driver serves an
// empty demo house.
func openStore(ctx context.Context, db config.Database) (norma.Store, error) {
	switch db.Driver {
	case "postgres":
		s, err := pg.Open(db.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("ping: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, db.DSN)
		if err != nil {
			return nil, err
		}
		if err := s.Seed(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
		return s, nil
	case "memory":
		return norma.NewInMemory(&norma.CasaLegislativa{
			Nome:        "Câmara Municipal de Demonstração",
			Sigla:       "CMD",
			Municipio:   "Brasília",
			UF:          "DF",
			EnderecoWeb: "www.demo.df.leg.br",
		}, norma.EsferaMunicipal), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}
