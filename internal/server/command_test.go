package server

import (
	"reflect"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want Command
		ok   bool
	}{
		{"pontos-parada", Command{Name: "pontos-parada", Args: []string{}}, true},
		{"adicionar-ponto-parada /a.lua 3\r", Command{Name: "adicionar-ponto-parada", Args: []string{"/a.lua", "3"}}, true},
		{"avaliar 2 + 2", Command{Name: "avaliar", Args: []string{"2", "+", "2"}}, true},
		{"", Command{}, false},
		{"   ", Command{}, false},
		{"\r", Command{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseLine(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseLine(%q) ok = %v, expected %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseLine(%q) = %+v, expected %+v", tt.line, got, tt.want)
		}
	}
}

func TestCommand_Rest(t *testing.T) {
	cmd, _ := ParseLine("avaliar x  ..  'a b'")
	if got := cmd.Rest(); got != "x  ..  'a b'" {
		t.Errorf("Rest() = %q", got)
	}
}

func TestSplitChunk(t *testing.T) {
	cmds := SplitChunk("pontos-parada\n\nvariaveis\r\navaliar 1\n")
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	want := []string{"pontos-parada", "variaveis", "avaliar"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("SplitChunk names = %v, expected %v", names, want)
	}
}
