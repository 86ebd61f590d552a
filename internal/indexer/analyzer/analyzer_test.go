package analyzer

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

func TestAnalyzeDefaultPipeline(t *testing.T) {
	a := Default()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercase", "Stefano Rossi", []string{"stefano", "rossi"}},
		{"punctuation splits", "e-mail,foo;BAR", []string{"e", "mail", "foo", "bar"}},
		{"stop words dropped", "The quick fox and the dog", []string{"quick", "fox", "dog"}},
		{"digits kept", "Via Roma 42", []string{"via", "roma", "42"}},
		{"unicode letters", "Müller straße", []string{"müller", "straße"}},
		{"nfkc", "ﬁle", []string{"file"}},
		{"empty", "", []string{}},
		{"only separators", " ,.;- ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(a.Tokens(tt.in))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAnalyzeOffsetsAndPositions(t *testing.T) {
	a := Default()
	text := "Maria and Bianchi"
	tokens := a.Tokens(text)
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(tokens))
	}
	if tokens[0].Position != 0 || tokens[1].Position != 2 {
		t.Errorf("positions = %d,%d, want 0,2 (stop word leaves a gap)", tokens[0].Position, tokens[1].Position)
	}
	for _, tok := range tokens {
		if got := strings.ToLower(text[tok.StartOffset:tok.EndOffset]); got != tok.Text {
			t.Errorf("offsets [%d,%d) cover %q, want %q", tok.StartOffset, tok.EndOffset, got, tok.Text)
		}
	}
}

func TestAnalyzeIsDeterministicAndRestartable(t *testing.T) {
	a := Default()
	text := "Distributed search engines process queries across multiple shards"
	seq := a.Analyze(text)

	var first, second []Token
	for tok := range seq {
		first = append(first, tok)
	}
	for tok := range seq {
		second = append(second, tok)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("re-running the same sequence changed output:\n%v\n%v", first, second)
	}
	if !reflect.DeepEqual(first, a.Tokens(text)) {
		t.Error("Tokens and Analyze disagree")
	}
}

func TestAnalyzeStopsEarly(t *testing.T) {
	a := Default()
	n := 0
	for range a.Analyze("one two three four") {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("expected early exit after 2 tokens, got %d", n)
	}
}

func TestAnalyzeInvalidUTF8(t *testing.T) {
	a := Default()
	got := texts(a.Tokens("good\xffbad\xfe\xfd word"))
	want := []string{"good", "bad", "word"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAnalyzeConfig(t *testing.T) {
	t.Run("min token length", func(t *testing.T) {
		a, err := New(config.AnalyzerConfig{MinTokenLength: 3, Lowercase: true})
		if err != nil {
			t.Fatal(err)
		}
		got := texts(a.Tokens("go is a fun language"))
		want := []string{"fun", "language"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
	t.Run("case preserved", func(t *testing.T) {
		a, err := New(config.AnalyzerConfig{Lowercase: false})
		if err != nil {
			t.Fatal(err)
		}
		got := texts(a.Tokens("Stefano ROSSI"))
		want := []string{"Stefano", "ROSSI"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
	t.Run("custom stop words are normalised", func(t *testing.T) {
		a, err := New(config.AnalyzerConfig{StopWords: []string{"Via"}, Lowercase: true})
		if err != nil {
			t.Fatal(err)
		}
		got := texts(a.Tokens("via Roma"))
		if !reflect.DeepEqual(got, []string{"roma"}) {
			t.Errorf("got %v", got)
		}
	})
	t.Run("english stemmer", func(t *testing.T) {
		a, err := New(config.AnalyzerConfig{Lowercase: true, Stemmer: "english"})
		if err != nil {
			t.Fatal(err)
		}
		got := texts(a.Tokens("running runs"))
		if len(got) != 2 || got[0] != got[1] {
			t.Errorf("expected both words to stem to the same term, got %v", got)
		}
	})
	t.Run("unknown stemmer", func(t *testing.T) {
		_, err := New(config.AnalyzerConfig{Stemmer: "klingon"})
		if !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func BenchmarkAnalyze(b *testing.B) {
	a := Default()
	text := strings.Repeat(`Information retrieval systems combine tokenization, stemming, and
        stop word removal to normalize text into searchable terms. `, 20)
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = a.Tokens(text)
	}
}

func BenchmarkAnalyzeParallel(b *testing.B) {
	a := Default()
	text := "Distributed search engines process queries across multiple shards"
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = a.Tokens(text)
		}
	})
}
