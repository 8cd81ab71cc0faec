package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/lgfreitas/eproc-monitor/internal/cache"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoragePath(t *testing.T) {
	path := StoragePath("5001234-56.2024.8.21.0001", 95, "PET1.pdf")
	assert.Equal(t, "50012345620248210001/evento_95/PET1.pdf", path)
}

func TestStoragePathIsDeterministic(t *testing.T) {
	a := StoragePath("5001234-56.2024.8.21.0001", 95, "Petição Inicial.pdf")
	b := StoragePath("5001234-56.2024.8.21.0001", 95, "Petição Inicial.pdf")
	assert.Equal(t, a, b)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"clean name", "sentenca.pdf", "sentenca.pdf"},
		{"spaces and slashes", "Petição / Inicial.pdf", "Petição_Inicial.pdf"},
		{"leading dots stripped", "..hidden.pdf", "hidden.pdf"},
		{"empty falls back", "", "documento"},
		{"only unsafe chars", "///???", "documento"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.input))
		})
	}
}

func TestSanitizeFileNameCapsLength(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "abcdefgh"
	}
	assert.LessOrEqual(t, len(SanitizeFileName(long)), 120)
}

// A case whose attachments are all known to the path cache must produce zero
// network traffic: the nil session would panic on any browser use.
func TestFetchCaseDocumentsSkipsStoredWithoutFetching(t *testing.T) {
	cfg := &config.Config{DownloadTimeout: time.Second}
	paths := cache.NewPathCache(time.Minute)
	f := NewFetcher(cfg, nil, nil, paths, testLogger(t))

	events := []ParsedEvent{
		{
			Seq:             intPtr(95),
			IsDeadlineEvent: true,
			RefEvent:        intPtr(88),
			Attachments: []Attachment{
				{Name: "PET1.pdf", URL: "https://eproc.example/doc?id=1"},
				{Name: "SENT1.pdf", URL: "https://eproc.example/doc?id=2"},
			},
		},
	}
	paths.Warm([]string{
		StoragePath("5001234-56.2024.8.21.0001", 95, "PET1.pdf"),
		StoragePath("5001234-56.2024.8.21.0001", 95, "SENT1.pdf"),
	})

	stored, skipped := f.FetchCaseDocuments(context.Background(), nil, "5001234-56.2024.8.21.0001", events)
	assert.Zero(t, stored)
	assert.Equal(t, 2, skipped)
}

func TestUrlMatchesAttachment(t *testing.T) {
	assert.True(t, urlMatchesAttachment(
		"https://eproc.example/controlador.php?acao=acessar_documento&doc=1",
		"https://eproc.example/controlador.php?acao=acessar_documento&doc=1",
	))
	// Host rewrites between panel and document service are tolerated
	assert.True(t, urlMatchesAttachment(
		"https://docs.eproc.example/controlador.php?acao=acessar_documento&doc=1",
		"https://eproc.example/controlador.php?acao=acessar_documento&doc=1",
	))
	assert.False(t, urlMatchesAttachment(
		"https://eproc.example/controlador.php?acao=acessar_documento&doc=1",
		"https://eproc.example/controlador.php?acao=acessar_documento&doc=2",
	))
}

func TestMarshalAttachments(t *testing.T) {
	assert.Empty(t, MarshalAttachments(nil))

	out := MarshalAttachments([]Attachment{{Name: "PET1.pdf", Kind: "application/pdf", URL: "x"}})
	require.NotEmpty(t, out)
	assert.Contains(t, out, "PET1.pdf")
}
