package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

// ChatClient is the chat-completion half of *openai.Client.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// PatientContext is the minimal patient description sent with a
// transcript.
type PatientContext struct {
	Name      string
	PatientID string
	Room      string
	Age       string
	Gender    string
}

func PatientContextOf(p *models.Patient) PatientContext {
	pc := PatientContext{Name: p.Name, PatientID: p.PatientID, Room: "unknown", Age: "unknown", Gender: "unknown"}
	if p.Room != nil && *p.Room != "" {
		pc.Room = *p.Room
	}
	if p.Age != nil {
		pc.Age = strconv.Itoa(*p.Age)
	}
	if p.Gender != nil && *p.Gender != "" {
		pc.Gender = *p.Gender
	}
	return pc
}

const reportSystemPrompt = "You are a healthcare AI assistant specialized in creating ISBAR reports from nursing handover transcriptions. Always respond with valid JSON."

const reportPromptTemplate = `Create an ISBAR (Identify, Situation, Background, Assessment, Recommendation) report from the nursing handover transcription below.

Patient Information:
- Name: %s
- ID: %s
- Room: %s
- Age: %s
- Gender: %s

Transcription:
%q

Return a JSON object with exactly these keys:
{
  "identify": "identification of the patient and relevant details",
  "situation": "current situation and immediate concerns",
  "background": "relevant medical history and context",
  "assessment": "clinical assessment and observations",
  "recommendation": "specific recommendations",
  "summary": "brief summary of the handover",
  "priority": "high|medium|low",
  "keyPoints": ["short key point", "..."],
  "actionItems": ["short action item", "..."]
}

Fill every section from the transcription content.`

// OpenAIReporter turns a transcript into an ISBAR report with one chat
// completion call.
type OpenAIReporter struct {
	client ChatClient
	model  string
}

func NewOpenAIReporter(client ChatClient, model string) *OpenAIReporter {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIReporter{client: client, model: model}
}

func (r *OpenAIReporter) GenerateReport(ctx context.Context, transcript string, pc PatientContext) (*models.ISBARReport, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reportSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(reportPromptTemplate,
				pc.Name, pc.PatientID, pc.Room, pc.Age, pc.Gender, transcript)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.3,
	})
	if err != nil {
		return nil, errs.ReportGeneration(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.ReportGeneration(errors.New("no choices in response"))
	}

	report, err := ParseReport(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, errs.ReportGeneration(err)
	}
	return report, nil
}

// ParseReport decodes model output into a report. Priority is normalised to
// lower case and must be one of high, medium or low.
func ParseReport(content string) (*models.ISBARReport, error) {
	var report models.ISBARReport
	if err := json.Unmarshal([]byte(content), &report); err != nil {
		return nil, fmt.Errorf("parse report json: %w", err)
	}

	report.Priority = models.Priority(strings.ToLower(strings.TrimSpace(string(report.Priority))))
	if !report.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority %q", report.Priority)
	}
	if report.KeyPoints == nil {
		report.KeyPoints = []string{}
	}
	if report.ActionItems == nil {
		report.ActionItems = []string{}
	}
	return &report, nil
}
