package gemini

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/smashers-ai/smashers/internal/apperror"
	"github.com/smashers-ai/smashers/pkg/models"
)

// DefaultVideoMIMEType is used for link parts and for files whose type cannot be detected
const DefaultVideoMIMEType = "video/mp4"

// Request is the body of a generateContent call
type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is one conversational turn
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is either inline text or a reference to an uploaded or linked file
type Part struct {
	Text     string    `json:"text,omitempty"`
	FileData *FileData `json:"fileData,omitempty"`
}

// FileData references a video by URI
type FileData struct {
	FileURI  string `json:"fileUri"`
	MIMEType string `json:"mimeType"`
}

// GenerationConfig controls sampling and output format
type GenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

// DefaultGenerationConfig is the fixed configuration used for every analysis
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		Temperature:      0.7,
		MaxOutputTokens:  8192,
		ResponseMIMEType: "application/json",
	}
}

// TextPart builds a text part
func TextPart(text string) Part {
	return Part{Text: text}
}

// FilePart builds a file reference part
func FilePart(uri, mimeType string) Part {
	if mimeType == "" {
		mimeType = DefaultVideoMIMEType
	}
	return Part{FileData: &FileData{FileURI: uri, MIMEType: mimeType}}
}

// NewRequest wraps parts in a single user turn with the default generation config
func NewRequest(parts ...Part) *Request {
	return &Request{
		Contents:         []Content{{Role: "user", Parts: parts}},
		GenerationConfig: DefaultGenerationConfig(),
	}
}

// Response is the decoded body of a successful generateContent call
type Response struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// Candidate is one generated answer
type Candidate struct {
	Content      *Content `json:"content"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// UsageMetadata reports token consumption
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

const (
	emptyResponseMessage     = "No analysis returned from API"
	malformedResponseMessage = "Failed to parse analysis response"
)

// Text returns the first candidate's first part text. Each missing level
// is reported as a distinct EmptyResponse cause.
func (r *Response) Text() (string, error) {
	if r == nil {
		return "", apperror.Wrap(apperror.KindEmptyResponse, emptyResponseMessage, errors.New("response is nil"))
	}
	if len(r.Candidates) == 0 {
		return "", apperror.Wrap(apperror.KindEmptyResponse, emptyResponseMessage, errors.New("response has no candidates"))
	}
	content := r.Candidates[0].Content
	if content == nil {
		return "", apperror.Wrap(apperror.KindEmptyResponse, emptyResponseMessage, errors.New("candidate has no content"))
	}
	if len(content.Parts) == 0 {
		return "", apperror.Wrap(apperror.KindEmptyResponse, emptyResponseMessage, errors.New("content has no parts"))
	}
	text := content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", apperror.Wrap(apperror.KindEmptyResponse, emptyResponseMessage, errors.New("part has no text"))
	}
	return text, nil
}

// DecodeResponse decodes a raw generateContent body
func DecodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperror.Wrap(apperror.KindMalformedResponse, malformedResponseMessage, err)
	}
	return &resp, nil
}

// ParseResponse extracts and decodes the analysis JSON from a response
func ParseResponse(resp *Response) (*models.AnalysisResult, error) {
	text, err := resp.Text()
	if err != nil {
		return nil, err
	}
	return ParseAnalysis(text)
}

// ParseAnalysis decodes the model's JSON text. Only syntax is checked;
// missing or oddly shaped fields decode to their zero values.
func ParseAnalysis(text string) (*models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, apperror.Wrap(apperror.KindMalformedResponse, malformedResponseMessage, err)
	}
	return &result, nil
}

// apiErrorBody is the provider's error envelope
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func providerMessage(body []byte) string {
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return e.Error.Message
}
