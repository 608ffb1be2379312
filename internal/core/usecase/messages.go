package usecase

import (
	"fmt"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

const unexpectedMessage = "Ocorreu um erro inesperado."

// UserMessage renders err for end users in European Portuguese.
func (c *TaskClient) UserMessage(err error) string {
	if err == nil {
		return ""
	}
	f := domain.AsFailure(err)

	switch f.Code {
	case domain.CodeFileTooLarge:
		return fmt.Sprintf("O ficheiro é demasiado grande. Tamanho máximo: %dMB.", c.cfg.MaxUploadMB)
	case domain.CodeInvalidFileType:
		return "Tipo de ficheiro inválido. Apenas são aceites ficheiros PDF."
	case domain.CodeProcessing:
		if f.Message != "" {
			return "Não foi possível processar o seu ficheiro: " + f.Message
		}
		return "Não foi possível processar o seu ficheiro."
	case domain.CodeCanceled:
		return "A operação foi cancelada."
	case domain.CodeCircuitOpen:
		return "O serviço está temporariamente indisponível. Por favor, tente novamente mais tarde."
	}

	switch f.HTTPStatus {
	case 401:
		return "Por favor, faça login para continuar."
	case 403:
		return "Não tem permissão para realizar esta operação."
	case 404:
		return "O recurso solicitado não foi encontrado."
	case 413:
		return fmt.Sprintf("O ficheiro é demasiado grande. Tamanho máximo: %dMB.", c.cfg.MaxUploadMB)
	case 400, 422:
		return "Os dados fornecidos são inválidos. Por favor, verifique e tente novamente."
	case 429:
		return "Muitas tentativas. Por favor, aguarde alguns segundos antes de tentar novamente."
	case 500, 502, 503, 504:
		return "O serviço está temporariamente indisponível. Por favor, tente novamente mais tarde."
	case 408:
		return "A operação demorou demasiado tempo. Por favor, tente novamente."
	case 0:
		switch f.Code {
		case domain.CodeNetwork:
			return "Sem conexão à internet. Por favor, verifique a sua ligação."
		case domain.CodeTimeout:
			return "A operação demorou demasiado tempo. Por favor, tente novamente."
		case domain.CodeConnection:
			return "Erro de conexão. Por favor, verifique a sua internet e tente novamente."
		case domain.CodeValidation:
			return "Os dados fornecidos são inválidos. Por favor, verifique e tente novamente."
		case domain.CodeAuthentication:
			return "Por favor, faça login para continuar."
		case domain.CodeNotFound:
			return "O recurso solicitado não foi encontrado."
		}
	}
	return unexpectedMessage
}
