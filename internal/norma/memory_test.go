package norma

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seeded() *InMemory {
	s := NewInMemory(&CasaLegislativa{Nome: "Câmara", Municipio: "Cocalzinho", UF: "GO"}, EsferaMunicipal)
	lei := TipoNorma{ID: 1, Sigla: "LO", Descricao: "Lei Ordinária", EquivalenteLexML: "lei"}
	res := TipoNorma{ID: 2, Sigla: "RES", Descricao: "Resolução", EquivalenteLexML: LexMLResolucao}
	s.AddNorma(Norma{ID: 3, Numero: "3", Ano: 2020, Data: day(2020, 3, 1), Tipo: lei, EsferaFederacao: "M"})
	s.AddNorma(Norma{ID: 1, Numero: "1", Ano: 2019, Data: day(2019, 1, 10), Tipo: lei, EsferaFederacao: "M"})
	s.AddNorma(Norma{ID: 2, Numero: "7", Ano: 2019, Data: day(2019, 6, 5), Tipo: res, EsferaFederacao: "E"})
	return s
}

func TestListNormasFilters(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	from := day(2019, 2, 1)
	midday := day(2019, 6, 5).Add(10 * time.Hour)

	cases := []struct {
		name string
		f    Filter
		ids  []int64
	}{
		{"until only", Filter{Until: day(2030, 1, 1)}, []int64{1, 2, 3}},
		{"until cuts", Filter{Until: day(2019, 12, 31)}, []int64{1, 2}},
		{"from", Filter{Until: day(2030, 1, 1), From: &from}, []int64{2, 3}},
		{"from same day", Filter{Until: day(2030, 1, 1), From: &midday}, []int64{2, 3}},
		{"until same day", Filter{Until: day(2019, 6, 5).Add(time.Hour)}, []int64{1, 2}},
		{"numero", Filter{Until: day(2030, 1, 1), Numero: "7"}, []int64{2}},
		{"ano", Filter{Until: day(2030, 1, 1), Ano: 2019}, []int64{1, 2}},
		{"tipo lexml", Filter{Until: day(2030, 1, 1), TipoLexML: LexMLResolucao}, []int64{2}},
		{"esfera", Filter{Until: day(2030, 1, 1), Esfera: "M"}, []int64{1, 3}},
		{"tipo", Filter{Until: day(2030, 1, 1), TipoID: 1}, []int64{1, 3}},
		{"slice", Filter{Until: day(2030, 1, 1), Offset: 1, Limit: 1}, []int64{2}},
		{"offset past end", Filter{Until: day(2030, 1, 1), Offset: 10, Limit: 5}, nil},
	}
	for _, tc := range cases {
		got, err := s.ListNormas(ctx, tc.f)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != len(tc.ids) {
			t.Fatalf("%s: got %d normas, want %d", tc.name, len(got), len(tc.ids))
		}
		for i, n := range got {
			if n.ID != tc.ids[i] {
				t.Fatalf("%s: position %d has id %d, want %d", tc.name, i, n.ID, tc.ids[i])
			}
		}
	}
}

func TestTiposNormaSorted(t *testing.T) {
	tipos, err := seeded().TiposNorma(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tipos) != 2 || tipos[0].ID != 1 || tipos[1].ID != 2 {
		t.Fatalf("unexpected tipos: %#v", tipos)
	}
}

func TestPublicadorFirstRow(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	if p, err := s.Publicador(ctx); err != nil || p != nil {
		t.Fatalf("expected no publicador, got %v, %v", p, err)
	}
	if err := s.SavePublicador(ctx, &Publicador{IDPublicador: 10, Nome: "Primeiro"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePublicador(ctx, &Publicador{IDPublicador: 11, Nome: "Segundo"}); err != nil {
		t.Fatal(err)
	}
	p, err := s.Publicador(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.IDPublicador != 10 {
		t.Fatalf("expected first publicador, got %d", p.IDPublicador)
	}
}

func TestSaveValidation(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	if err := s.SavePublicador(ctx, &Publicador{Nome: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.SaveProvedor(ctx, &Provedor{IDProvedor: 1, Nome: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing sigla, got %v", err)
	}
	if err := s.SaveProvedor(ctx, &Provedor{ID: 99, IDProvedor: 1, Nome: "x", Sigla: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveConflict(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	first := &Publicador{IDPublicador: 5, Nome: "A"}
	if err := s.SavePublicador(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePublicador(ctx, &Publicador{IDPublicador: 5, Nome: "B"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	first.Nome = "A2"
	if err := s.SavePublicador(ctx, first); err != nil {
		t.Fatalf("updating the same row must not conflict: %v", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.AddNorma(Norma{ID: int64(100 + i), Numero: "x", Data: day(2021, 1, 1)})
			_, _ = s.ListNormas(ctx, Filter{Until: day(2030, 1, 1)})
		}(i)
	}
	wg.Wait()
	all, _ := s.ListNormas(ctx, Filter{Until: day(2030, 1, 1)})
	if len(all) != 23 {
		t.Fatalf("expected 23 normas, got %d", len(all))
	}
}
