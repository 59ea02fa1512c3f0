package types

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

type AskParams struct {
	Prompt    string `json:"prompt" validate:"required"`
	TopK      int    `json:"top_k" validate:"omitempty,gte=1,lte=20"`
	SkipCache bool   `json:"skip_cache"`
}

type ChatParams struct {
	SessionID string `json:"session_id" validate:"required"`
	Message   string `json:"message" validate:"required"`
	TopK      int    `json:"top_k" validate:"omitempty,gte=1,lte=20"`
}

type SearchParams struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"omitempty,gte=1,lte=50"`
}

func (params *AskParams) Validate() map[string]string {
	return fieldErrors(validator.New().Struct(params))
}

func (params *ChatParams) Validate() map[string]string {
	return fieldErrors(validator.New().Struct(params))
}

func (params *SearchParams) Validate() map[string]string {
	return fieldErrors(validator.New().Struct(params))
}

func fieldErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	errs := err.(validator.ValidationErrors)
	errors := make(map[string]string)
	for _, e := range errs {
		errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return errors
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: http.StatusUnprocessableEntity,
		Errors: errors,
	}
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

type AskResponse struct {
	Answer     string    `json:"answer"`
	Sources    []Source  `json:"sources"`
	Confidence float64   `json:"confidence"`
	Cached     bool      `json:"cached"`
	Similarity float64   `json:"similarity,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type ChatResponse struct {
	SessionID  string    `json:"session_id"`
	Answer     string    `json:"answer"`
	Sources    []Source  `json:"sources"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

type Source struct {
	DocID     string `json:"doc_id"`
	Title     string `json:"title"`
	ChunkText string `json:"chunk_text"`
	Index     int    `json:"index"`
}

type SearchResult struct {
	DocID    string  `json:"doc_id"`
	Title    string  `json:"title"`
	Section  string  `json:"section,omitempty"`
	Content  string  `json:"content"`
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
}

type SearchResponse struct {
	Results   []SearchResult `json:"results"`
	Total     int            `json:"total"`
	Timestamp time.Time      `json:"timestamp"`
}

type DocumentInfo struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	SourcePath string    `json:"source_path"`
	Chunks     int       `json:"chunks"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
