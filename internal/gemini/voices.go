package gemini

import "strings"

// DefaultVoice is used when a request names no voice
const DefaultVoice = "Aoede"

// Voice is a prebuilt speech-synthesis voice
type Voice struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var voices = []Voice{
	{"Zephyr", "Bright"},
	{"Puck", "Upbeat"},
	{"Kore", "Firme"},
	{"Fenrir", "Excitável"},
	{"Leda", "Juventude"},
	{"Orus", "Firm"},
	{"Aoede", "Breezy"},
	{"Callirrhoe", "Tranquila"},
	{"Autonoe", "Bright"},
	{"Enceladus", "Breathy"},
	{"Iapetus", "Limpar"},
	{"Umbriel", "Tranquilo"},
	{"Algieba", "Suave"},
	{"Despina", "Smooth"},
	{"Erinome", "Limpar"},
	{"Algenib", "Gravelly"},
	{"Rasalgethi", "Informativa"},
	{"Laomedeia", "Upbeat"},
	{"Achernar", "Suave"},
	{"Alnilam", "Firme"},
	{"Schedar", "Even"},
	{"Gacrux", "Adulto"},
	{"Pulcherrima", "Avançar"},
	{"Achird", "Amigável"},
	{"Zubenelgenubi", "Casual"},
	{"Vindemiatrix", "Gentil"},
	{"Sadachbia", "Lively"},
	{"Sadaltager", "Conhecedor"},
	{"Sulafat", "Quente"},
}

// Voices returns the prebuilt voice catalog
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// LookupVoice finds a voice by name, ignoring case, and returns its
// canonical spelling.
func LookupVoice(name string) (Voice, bool) {
	for _, v := range voices {
		if strings.EqualFold(v.Name, name) {
			return v, true
		}
	}
	return Voice{}, false
}
