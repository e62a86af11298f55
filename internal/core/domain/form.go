package domain

import (
	"encoding/json"
	"strings"
)

const CategoryProductive = "Productive"

// AcceptedExtensions is the file picker filter. It is advisory: files with
// other extensions are still accepted and forwarded as-is.
var AcceptedExtensions = []string{".txt", ".pdf"}

type InputKind string

const (
	InputEmpty InputKind = "empty"
	InputText  InputKind = "text"
	InputFile  InputKind = "file"
)

// FileRef points at a selected file spooled in object storage.
type FileRef struct {
	Key         string `json:"-"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Preview     string `json:"preview,omitempty"`
}

// Input is the active form input. Only one variant is ever populated.
type Input struct {
	kind InputKind
	text string
	file FileRef
}

func EmptyInput() Input {
	return Input{kind: InputEmpty}
}

func TextInput(text string) Input {
	if text == "" {
		return EmptyInput()
	}
	return Input{kind: InputText, text: text}
}

func FileInput(ref FileRef) Input {
	return Input{kind: InputFile, file: ref}
}

func (i Input) Kind() InputKind {
	if i.kind == "" {
		return InputEmpty
	}
	return i.kind
}

func (i Input) Text() (string, bool) {
	return i.text, i.kind == InputText
}

func (i Input) File() (FileRef, bool) {
	return i.file, i.kind == InputFile
}

// Submittable reports whether a submit would reach the network.
func (i Input) Submittable() bool {
	switch i.Kind() {
	case InputFile:
		return true
	case InputText:
		return strings.TrimSpace(i.text) != ""
	default:
		return false
	}
}

func (i Input) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind InputKind `json:"kind"`
		Text string    `json:"email_text,omitempty"`
		File *FileRef  `json:"file,omitempty"`
	}{Kind: i.Kind()}
	switch i.Kind() {
	case InputText:
		out.Text = i.text
	case InputFile:
		ref := i.file
		out.File = &ref
	}
	return json.Marshal(out)
}

type AnalysisResult struct {
	Category          string `json:"category"`
	SuggestedResponse string `json:"suggested_response"`
}

func (r AnalysisResult) IsProductive() bool {
	return r.Category == CategoryProductive
}

// FormState is a snapshot of one form controller.
type FormState struct {
	Input     Input           `json:"input"`
	IsLoading bool            `json:"is_loading"`
	Error     string          `json:"error,omitempty"`
	Result    *AnalysisResult `json:"result,omitempty"`
}
