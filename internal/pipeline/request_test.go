package pipeline

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		options   Options
		req       Request
		expectErr string
		check     func(t *testing.T, r Request)
	}{
		{
			name: "defaults applied",
			req:  Request{Text: " Olá ", APIKey: "k"},
			check: func(t *testing.T, r Request) {
				if r.Text != "Olá" || r.Voice != "Aoede" || r.Language != "pt-BR" || r.EnglishBehavior != TranslateAndSpeak {
					t.Errorf("Unexpected defaults %+v", r)
				}
			},
		},
		{
			name: "voice canonicalized",
			req:  Request{Text: "x", APIKey: "k", Voice: "kore"},
			check: func(t *testing.T, r Request) {
				if r.Voice != "Kore" {
					t.Errorf("Expected Kore, got %s", r.Voice)
				}
			},
		},
		{
			name:      "blank text",
			req:       Request{Text: "  \n", APIKey: "k"},
			expectErr: "text cannot be empty",
		},
		{
			name:      "unknown voice",
			req:       Request{Text: "x", APIKey: "k", Voice: "Robot"},
			expectErr: "unknown voice",
		},
		{
			name:      "unknown behavior",
			req:       Request{Text: "x", APIKey: "k", EnglishBehavior: "speak"},
			expectErr: "englishBehavior",
		},
		{
			name:      "missing key for synthesis",
			req:       Request{Text: "x"},
			expectErr: "apiKey is required",
		},
		{
			name:    "wrapper translate only needs no key",
			options: Options{WrapperSupported: true},
			req:     Request{Text: "x", Language: "en", EnglishBehavior: TranslateOnly, LocalEndpoint: "localhost:1"},
		},
		{
			name:      "wrapper unsupported needs key",
			options:   Options{WrapperSupported: false},
			req:       Request{Text: "x", Language: "en", EnglishBehavior: TranslateOnly, LocalEndpoint: "localhost:1"},
			expectErr: "apiKey is required",
		},
		{
			name:    "default key and endpoint",
			options: Options{WrapperSupported: true, DefaultAPIKey: "env", DefaultEndpoint: "localhost:9"},
			req:     Request{Text: "x"},
			check: func(t *testing.T, r Request) {
				if r.APIKey != "env" || r.LocalEndpoint != "localhost:9" {
					t.Errorf("Expected configured fallbacks, got %+v", r)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOrchestrator(nil, nil, nil, &recorder{}, tt.options, nil, nil)
			got, err := o.normalize(tt.req)
			if tt.expectErr != "" {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("Expected ErrInvalidRequest, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.expectErr) {
					t.Errorf("Expected error to contain %q, got %q", tt.expectErr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	f := newFixture(Options{})
	if _, err := f.orch.Submit(Request{}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
	if f.orch.Generation() != 0 {
		t.Errorf("Expected no generation issued, got %d", f.orch.Generation())
	}
	if len(f.pub.all()) != 0 {
		t.Error("Expected nothing published for a rejected request")
	}
}
