package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// AnalysisResult is the payload produced by the backend for a completed task.
type AnalysisResult struct {
	Metadata       AnalysisMetadata  `json:"metadata"`
	Financials     FinancialData     `json:"dados_financeiros"`
	Analysis       FinancialAnalysis `json:"analise"`
	GeneratedFiles GeneratedFiles    `json:"ficheiros_gerados"`
	DownloadURLs   DownloadURLs      `json:"download_urls"`

	// Raw keeps the payload as received.
	Raw json.RawMessage `json:"-"`
}

type AnalysisMetadata struct {
	NIF         string `json:"nif"`
	FiscalYear  string `json:"ano_exercicio"`
	CompanyName string `json:"designacao_social"`
	Email       string `json:"email"`
	ProcessedAt string `json:"data_processamento"`
}

type FinancialData struct {
	TotalAssets       *float64 `json:"ativo_total,omitempty"`
	TotalLiabilities  *float64 `json:"passivo_total,omitempty"`
	Equity            *float64 `json:"capital_proprio,omitempty"`
	Turnover          float64  `json:"volume_negocios"`
	EBITDA            float64  `json:"ebitda"`
	FinancialAutonomy float64  `json:"autonomia_financeira"`
	CurrentRatio      float64  `json:"liquidez_geral"`
	EBITDAMargin      float64  `json:"margem_ebitda"`
}

type Rating string

const (
	RatingLow      Rating = "BAIXO"
	RatingMedium   Rating = "MÉDIO"
	RatingHigh     Rating = "ALTO"
	RatingCritical Rating = "CRÍTICO"
)

type FinancialAnalysis struct {
	Rating          Rating   `json:"rating"`
	Score           *float64 `json:"score,omitempty"`
	Recommendations []string `json:"recomendacoes"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	Strengths       []string `json:"strengths,omitempty"`
	Opportunities   []string `json:"opportunities,omitempty"`
}

type GeneratedFiles struct {
	Excel string `json:"excel"`
	JSON  string `json:"json"`
}

type DownloadURLs struct {
	Excel string `json:"excel"`
	JSON  string `json:"json"`
}

// URLFor returns the backend-relative download path for a file type.
func (u DownloadURLs) URLFor(fileType FileType) string {
	if fileType == FileTypeExcel {
		return u.Excel
	}
	return u.JSON
}

var (
	nifPattern  = regexp.MustCompile(`^\d{9}$`)
	yearPattern = regexp.MustCompile(`^\d{4}$`)
)

// UploadRequest carries an IES document and its submission metadata.
type UploadRequest struct {
	Filename    string
	Content     []byte
	NIF         string
	FiscalYear  string
	CompanyName string
	Email       string
	Context     string
}

// Validate checks submission metadata. File checks live with the upload
// validator because they depend on configured limits.
func (r UploadRequest) Validate() error {
	if strings.TrimSpace(r.Filename) == "" {
		return fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if !nifPattern.MatchString(r.NIF) {
		return fmt.Errorf("%w: nif must have 9 digits", ErrInvalidInput)
	}
	if !yearPattern.MatchString(r.FiscalYear) {
		return fmt.Errorf("%w: fiscal year must have 4 digits", ErrInvalidInput)
	}
	if strings.TrimSpace(r.CompanyName) == "" {
		return fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	if !strings.Contains(r.Email, "@") {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return nil
}
