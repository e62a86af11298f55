package domain

// User-facing copy, pt-BR.
const (
	MsgMissingInput       = "Por favor, insira um texto de e-mail ou envie um arquivo."
	MsgAnalysisFailed     = "Ocorreu um erro na análise."
	MsgBackendUnreachable = "Não foi possível conectar ao backend."

	LabelSubmit       = "Analisar E-mail"
	LabelSubmitting   = "Analisando..."
	LabelLoader       = "Analisando com a IA, por favor aguarde..."
	LabelFilePrompt   = "Ou envie um arquivo (.txt, .pdf):"
	LabelFileSelected = "Arquivo: "
)
