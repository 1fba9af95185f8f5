package ingest

import (
	"strings"
	"testing"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head>
	<title>Manual do Sistema</title>
	<style>body { color: red; }</style>
	<script>console.log("tracking");</script>
</head>
<body>
	<h1>Cadastro de Documentos</h1>
	<p>Para cadastrar um documento, acesse o menu principal.</p>
	<p>Em seguida, preencha os campos obrigatórios.</p>
	<noscript>Ative o JavaScript.</noscript>
</body>
</html>`

func TestExtractHTML(t *testing.T) {
	text, err := ExtractHTML(strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("ExtractHTML: %v", err)
	}

	for _, want := range []string{
		"Cadastro de Documentos",
		"acesse o menu principal",
		"campos obrigatórios",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q", want)
		}
	}
	for _, unwanted := range []string{"color: red", "console.log", "Ative o JavaScript"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("extracted text contains %q", unwanted)
		}
	}
}

func TestHTMLTitle(t *testing.T) {
	title, err := HTMLTitle(strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatalf("HTMLTitle: %v", err)
	}
	if title != "Manual do Sistema" {
		t.Errorf("title = %q, want %q", title, "Manual do Sistema")
	}
}

func TestHTMLTitle_Missing(t *testing.T) {
	title, err := HTMLTitle(strings.NewReader("<html><body>sem titulo</body></html>"))
	if err != nil {
		t.Fatalf("HTMLTitle: %v", err)
	}
	if title != "" {
		t.Errorf("title = %q, want empty", title)
	}
}

func TestExtractText_PlainFallback(t *testing.T) {
	text, err := ExtractText("notas.txt", []byte("conteúdo simples"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "conteúdo simples" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractText_DispatchesHTML(t *testing.T) {
	text, err := ExtractText("pagina.HTML", []byte("<p>olá</p><script>x</script>"))
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if !strings.Contains(text, "olá") || strings.Contains(text, "x") {
		t.Errorf("html dispatch failed, got %q", text)
	}
}
