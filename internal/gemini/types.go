package gemini

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// firstPart returns candidates[0].content.parts[0], or nil when any step
// of the path is missing.
func (r generateResponse) firstPart() *part {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return nil
	}
	return &r.Candidates[0].Content.Parts[0]
}

// wrapperRequest is the body accepted by a self-hosted translation server
type wrapperRequest struct {
	Prompt string `json:"prompt"`
}

type wrapperResponse struct {
	Response string `json:"response"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// apiErrorMessage extracts error.message from a failed response, falling
// back to fallback with the status code.
func apiErrorMessage(resp *http.Response, fallback string) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && strings.TrimSpace(apiErr.Error.Message) != "" {
		return apiErr.Error.Message
	}
	return fmt.Sprintf("%s (HTTP %d)", fallback, resp.StatusCode)
}
