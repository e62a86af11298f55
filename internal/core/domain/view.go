package domain

import "strings"

// View is everything the page shows for a FormState.
type View struct {
	EmailText      string `json:"email_text"`
	FileLabel      string `json:"file_label"`
	FileName       string `json:"file_name,omitempty"`
	FilePreview    string `json:"file_preview,omitempty"`
	ShowRemoveFile bool   `json:"show_remove_file"`
	Accept         string `json:"accept"`

	SubmitDisabled bool   `json:"submit_disabled"`
	SubmitLabel    string `json:"submit_label"`

	ShowError bool   `json:"show_error"`
	Error     string `json:"error,omitempty"`

	ShowLoader bool   `json:"show_loader"`
	LoaderText string `json:"loader_text,omitempty"`

	ShowResult        bool   `json:"show_result"`
	Category          string `json:"category,omitempty"`
	CategoryClass     string `json:"category_class,omitempty"`
	SuggestedResponse string `json:"suggested_response,omitempty"`
}

// Render maps state to visible output. It has no side effects.
func Render(state FormState) View {
	view := View{
		FileLabel:   LabelFilePrompt,
		Accept:      strings.Join(AcceptedExtensions, ","),
		SubmitLabel: LabelSubmit,
	}

	if text, ok := state.Input.Text(); ok {
		view.EmailText = text
	}
	if ref, ok := state.Input.File(); ok {
		view.FileLabel = LabelFileSelected + ref.Name
		view.FileName = ref.Name
		view.FilePreview = ref.Preview
		view.ShowRemoveFile = true
	}

	if state.IsLoading {
		view.SubmitDisabled = true
		view.SubmitLabel = LabelSubmitting
		view.ShowLoader = true
		view.LoaderText = LabelLoader
	}

	if state.Error != "" {
		view.ShowError = true
		view.Error = state.Error
	}

	if state.Result != nil {
		view.ShowResult = true
		view.Category = state.Result.Category
		view.SuggestedResponse = state.Result.SuggestedResponse
		view.CategoryClass = "improductive"
		if state.Result.IsProductive() {
			view.CategoryClass = "productive"
		}
	}
	return view
}
