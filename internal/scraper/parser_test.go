package scraper

import (
	"testing"
	"time"

	"github.com/lgfreitas/eproc-monitor/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger("error", "console")
	require.NoError(t, err)
	return log
}

func intPtr(n int) *int { return &n }

func TestExtractDocket(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare docket", "5001234-56.2024.8.21.0001", "5001234-56.2024.8.21.0001"},
		{"embedded in text", "Processo 5001234-56.2024.8.21.0001 - Cumprimento", "5001234-56.2024.8.21.0001"},
		{"missing check digits", "5001234-5.2024.8.21.0001", ""},
		{"wrong separator", "5001234-56/2024.8.21.0001", ""},
		{"empty", "", ""},
		{"no docket at all", "Intimação eletrônica expedida", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDocket(tt.input))
		})
	}
}

func TestParseListRowsDropsMalformedRows(t *testing.T) {
	p := NewParser(testLogger(t))

	rows := []TableRow{
		{Raw: "5001234-56.2024.8.21.0001\nAUTOR: MARIA DA SILVA 123.456.789-01\nREU: BANCO ALFA S.A. 12.345.678/0001-90\nClasse: Procedimento Comum\nPrazo: 15"},
		{Raw: "Nenhum processo encontrado"},
		{Raw: "7009876-21.2023.8.21.0042\nEXEQUENTE: COOPERATIVA BETA\nEXECUTADO: JOAO PEREIRA 987.654.321-00"},
	}

	cases := p.ParseListRows(rows, "")
	require.Len(t, cases, 2)
	assert.Equal(t, "5001234-56.2024.8.21.0001", cases[0].Docket)
	assert.Equal(t, "7009876-21.2023.8.21.0042", cases[1].Docket)
}

func TestParseListRowFields(t *testing.T) {
	p := NewParser(testLogger(t))

	raw := "5001234-56.2024.8.21.0001\n" +
		"Juízo: 2ª Vara Cível de Porto Alegre\n" +
		"Classe: Procedimento Comum\n" +
		"Assunto: Contratos Bancários\n" +
		"AUTOR: MARIA DA SILVA 123.456.789-01\n" +
		"REU: BANCO ALFA S.A. 12.345.678/0001-90\n" +
		"Evento: Expedida/certificada a intimação eletrônica\n" +
		"Prazo: 15\n" +
		"Intimação: 10/06/2024 14:22\n" +
		"Início do prazo: 11/06/2024\n" +
		"Final do prazo: 26/06/2024"

	cases := p.ParseListRows([]TableRow{{Raw: raw}}, "")
	require.Len(t, cases, 1)
	c := cases[0]

	assert.Equal(t, "2ª Vara Cível de Porto Alegre", c.CourtCode)
	assert.Equal(t, "Procedimento Comum", c.CaseClass)
	assert.Equal(t, "Contratos Bancários", c.Subject)
	assert.Equal(t, 15, c.DeadlineDays)

	assert.Equal(t, "MARIA DA SILVA", c.PlaintiffName)
	assert.Equal(t, "123.456.789-01", c.PlaintiffTaxID)
	assert.Equal(t, "BANCO ALFA S.A.", c.DefendantName)
	assert.Equal(t, "12.345.678/0001-90", c.DefendantTaxID)

	require.NotNil(t, c.NoticeSentAt)
	assert.Equal(t, time.Date(2024, 6, 10, 14, 22, 0, 0, time.UTC), *c.NoticeSentAt)
	require.NotNil(t, c.DeadlineStartAt)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), *c.DeadlineStartAt)
	require.NotNil(t, c.DeadlineEndAt)
	assert.Equal(t, time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC), *c.DeadlineEndAt)

	assert.Equal(t, raw, c.RawCapture)
	assert.Empty(t, c.RepresentedSide)
}

func TestParseListRowGovernmentPartyWithoutTaxID(t *testing.T) {
	p := NewParser(testLogger(t))

	raw := "5001234-56.2024.8.21.0001\n" +
		"EXEQUENTE: ESTADO DO RIO GRANDE DO SUL\n" +
		"EXECUTADO: JOSE CARLOS 111.222.333-44"

	cases := p.ParseListRows([]TableRow{{Raw: raw}}, "")
	require.Len(t, cases, 1)
	assert.Equal(t, "ESTADO DO RIO GRANDE DO SUL", cases[0].PlaintiffName)
	assert.Empty(t, cases[0].PlaintiffTaxID)
	assert.Equal(t, "111.222.333-44", cases[0].DefendantTaxID)
}

func TestParseListRowInfersRepresentedSideInline(t *testing.T) {
	p := NewParser(testLogger(t))

	raw := "5001234-56.2024.8.21.0001\n" +
		"AUTOR: FREITAS ADVOCACIA\n" +
		"REU: BANCO ALFA S.A."

	cases := p.ParseListRows([]TableRow{{Raw: raw}}, "Freitas")
	require.Len(t, cases, 1)
	assert.Equal(t, "plaintiff", cases[0].RepresentedSide)
}

func TestMatchedRoleRequiresWordBoundary(t *testing.T) {
	// "REU" must not match a name starting with "REUNIDAS"
	assert.Empty(t, matchedRole("REUNIDAS TRANSPORTES LTDA", defendantRoles))
	assert.Equal(t, "REU", matchedRole("REU: BANCO ALFA", defendantRoles))
	assert.Equal(t, "EXECUTADO", matchedRole("EXECUTADO JOAO", defendantRoles))
}

func TestParseEventRow(t *testing.T) {
	p := NewParser(testLogger(t))

	rows := []TableRow{
		{
			Cells: []string{"95", "12/06/2024 09:15:00", "Expedida/certificada a intimação eletrônica. Prazo: 15 dias. Refere-se ao evento 88", "Escrivania"},
			Links: []LinkRef{
				{Text: "PET1", Href: "controlador.php?acao=acessar_documento&doc=42"},
				{Text: "Voltar", Href: "controlador.php?acao=painel_advogado"},
			},
			Highlighted: true,
		},
	}

	events := p.ParseEventRows(rows)
	require.Len(t, events, 1)
	ev := events[0]

	require.NotNil(t, ev.Seq)
	assert.Equal(t, 95, *ev.Seq)
	assert.True(t, ev.IsDeadlineEvent)
	require.NotNil(t, ev.RefEvent)
	assert.Equal(t, 88, *ev.RefEvent)
	assert.Equal(t, "Escrivania", ev.Actor)
	require.NotNil(t, ev.OccurredAt)
	assert.Equal(t, time.Date(2024, 6, 12, 9, 15, 0, 0, time.UTC), *ev.OccurredAt)

	require.Len(t, ev.Attachments, 1)
	assert.Equal(t, "PET1", ev.Attachments[0].Name)
}

func TestParseEventRowWithoutSequence(t *testing.T) {
	p := NewParser(testLogger(t))

	events := p.ParseEventRows([]TableRow{
		{Cells: []string{"Eventos", "Data", "Descrição"}},
	})
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Seq)
}

func TestIsAttachmentLink(t *testing.T) {
	tests := []struct {
		name string
		link LinkRef
		want bool
	}{
		{"document action URL", LinkRef{Href: "controlador.php?acao=acessar_documento&doc=1"}, true},
		{"pdf URL", LinkRef{Href: "/files/sentenca.pdf"}, true},
		{"document text prefix", LinkRef{Text: "SENT1", Href: "#"}, true},
		{"onclick handler", LinkRef{OnClick: "abrirDocumento('41')"}, true},
		{"navigation link", LinkRef{Text: "Voltar", Href: "controlador.php?acao=painel_advogado"}, false},
		{"empty", LinkRef{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAttachmentLink(tt.link))
		})
	}
}

func TestDeadlineBasePicksMinimumReference(t *testing.T) {
	events := []ParsedEvent{
		{Seq: intPtr(101), IsDeadlineEvent: true, RefEvent: intPtr(91)},
		{Seq: intPtr(102), IsDeadlineEvent: true, RefEvent: intPtr(95)},
		{Seq: intPtr(103), IsDeadlineEvent: true, RefEvent: intPtr(88)},
		{Seq: intPtr(104), IsDeadlineEvent: false, RefEvent: intPtr(1)},
	}

	base := DeadlineBase(events)
	require.NotNil(t, base)
	assert.Equal(t, 88, *base)
}

func TestDeadlineBaseNilWithoutReferences(t *testing.T) {
	assert.Nil(t, DeadlineBase(nil))
	assert.Nil(t, DeadlineBase([]ParsedEvent{
		{Seq: intPtr(10), IsDeadlineEvent: true},
		{Seq: intPtr(11), RefEvent: intPtr(5)},
	}))
}

func TestFilterFromBase(t *testing.T) {
	events := []ParsedEvent{
		{Seq: intPtr(87)},
		{Seq: intPtr(88)},
		{Seq: nil},
		{Seq: intPtr(95)},
	}

	kept := FilterFromBase(events, intPtr(88))
	require.Len(t, kept, 2)
	assert.Equal(t, 88, *kept[0].Seq)
	assert.Equal(t, 95, *kept[1].Seq)

	// Nil base keeps everything, unparseable sequences included
	assert.Len(t, FilterFromBase(events, nil), 4)
}

func TestRelevantDocumentEvents(t *testing.T) {
	att := []Attachment{{Name: "DOC1", URL: "x.pdf"}}
	events := []ParsedEvent{
		{Seq: intPtr(38), Attachments: att},
		{Seq: intPtr(39), Attachments: att},
		{Seq: intPtr(45), Attachments: att},
		{Seq: intPtr(42)},
		{Seq: intPtr(40), Attachments: att},
		{Seq: intPtr(50), IsDeadlineEvent: true, RefEvent: intPtr(40), Attachments: att},
	}

	relevant := RelevantDocumentEvents(events)
	var seqs []int
	for _, ev := range relevant {
		seqs = append(seqs, *ev.Seq)
	}
	// Events below base 40 and events without attachments are excluded,
	// order is ascending
	assert.Equal(t, []int{40, 45, 50}, seqs)
}

func TestParseRepresentatives(t *testing.T) {
	p := NewParser(testLogger(t))

	headers := []string{"AUTOR", "RÉU"}
	columns := [][]string{
		{"MARIA DA SILVA\nRS12345 - LUIS GUSTAVO FREITAS"},
		{"BANCO ALFA S.A.\nSP98765 - CARLA MENDES"},
	}

	rep := p.ParseRepresentatives(headers, columns)
	require.Len(t, rep.PlaintiffReps, 1)
	assert.Equal(t, "LUIS GUSTAVO FREITAS", rep.PlaintiffReps[0])
	require.Len(t, rep.DefendantReps, 1)
	assert.Equal(t, "CARLA MENDES", rep.DefendantReps[0])
}

func TestScanRepresentativesFallback(t *testing.T) {
	p := NewParser(testLogger(t))

	text := "Partes e Representantes\n" +
		"AUTOR: MARIA DA SILVA\n" +
		"RS12345 - LUIS GUSTAVO FREITAS\n" +
		"REU: BANCO ALFA S.A.\n" +
		"SP98765 - CARLA MENDES\n"

	rep := p.ScanRepresentatives(text)
	assert.Equal(t, []string{"LUIS GUSTAVO FREITAS"}, rep.PlaintiffReps)
	assert.Equal(t, []string{"CARLA MENDES"}, rep.DefendantReps)
}

func TestMatchSide(t *testing.T) {
	rep := Representation{
		PlaintiffReps: []string{"LUIS GUSTAVO FREITAS"},
		DefendantReps: []string{"CARLA MENDES"},
	}

	assert.Equal(t, "plaintiff", MatchSide(rep, "Luís Gustavo Freitas"))
	assert.Equal(t, "defendant", MatchSide(rep, "Carla Mendes"))
	assert.Empty(t, MatchSide(rep, "Outro Advogado"))
	assert.Empty(t, MatchSide(rep, ""))
}

func TestMatchesAdvocate(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		advocate  string
		want      bool
	}{
		{"exact", "LUIS GUSTAVO FREITAS", "Luis Gustavo Freitas", true},
		{"diacritics", "LUÍS GUSTAVO FREITAS", "Luis Gustavo Freitas", true},
		{"association suffix", "FREITAS SOCIEDADE INDIVIDUAL DE ADVOCACIA", "Freitas", true},
		{"candidate contains advocate", "DR. LUIS GUSTAVO FREITAS OAB", "Luis Gustavo Freitas", true},
		{"different person", "CARLA MENDES", "Luis Gustavo Freitas", false},
		{"empty candidate", "", "Luis", false},
		{"empty advocate", "Luis", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesAdvocate(tt.candidate, tt.advocate))
		})
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "JOAO DA SILVA", Fold("  João   da Silva "))
	assert.Equal(t, "ACAO", Fold("ação"))
	assert.Equal(t, "", Fold(""))
}

func TestCleanRepresentativeLine(t *testing.T) {
	assert.Equal(t, "LUIS GUSTAVO FREITAS", cleanRepresentativeLine("RS12345 - LUIS GUSTAVO FREITAS"))
	assert.Equal(t, "CARLA MENDES", cleanRepresentativeLine("Advogada   SP98765   CARLA MENDES"))
	assert.Empty(t, cleanRepresentativeLine("RS12345"))
}
