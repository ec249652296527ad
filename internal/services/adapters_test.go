package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"nurse-handover/backend/internal/errs"
	"nurse-handover/backend/internal/models"
)

type fakeTranscriptionClient struct {
	text string
	err  error
	got  []byte
	req  openai.AudioRequest
}

func (f *fakeTranscriptionClient) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.req = req
	f.got, _ = io.ReadAll(req.Reader)
	return openai.AudioResponse{Text: f.text}, f.err
}

type fakeChatClient struct {
	content string
	err     error
	req     openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.content}}},
	}, nil
}

func TestTranscribeSendsStoredAudio(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"audio/k.webm": []byte("opus-bytes")}}
	client := &fakeTranscriptionClient{text: "Patient resting comfortably."}
	tr := NewOpenAITranscriber(client, NewS3AudioStore(fake, "audio", ""), "")

	text, err := tr.Transcribe(context.Background(), "s3://audio/k.webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Patient resting comfortably." {
		t.Errorf("text = %q", text)
	}
	if string(client.got) != "opus-bytes" || client.req.Model != openai.Whisper1 || client.req.FilePath != "k.webm" {
		t.Errorf("request = %+v body=%q", client.req, client.got)
	}
}

func TestTranscribeWrapsUpstreamError(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"audio/k.webm": nil}}
	client := &fakeTranscriptionClient{err: errors.New("quota exceeded")}
	tr := NewOpenAITranscriber(client, NewS3AudioStore(fake, "audio", ""), "whisper-1")

	_, err := tr.Transcribe(context.Background(), "s3://audio/k.webm")
	if errs.KindOf(err) != errs.KindTranscription {
		t.Fatalf("expected transcription error, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("upstream message lost: %v", err)
	}
}

const validReport = `{
  "identify": "John Smith, P001, room 12",
  "situation": "Post-op day one",
  "background": "Appendectomy yesterday",
  "assessment": "Vitals stable",
  "recommendation": "Continue observations",
  "summary": "Stable after surgery",
  "priority": " Medium ",
  "keyPoints": ["afebrile", "pain controlled"],
  "actionItems": ["obs every 4 hours"]
}`

func TestGenerateReport(t *testing.T) {
	client := &fakeChatClient{content: validReport}
	rep := NewOpenAIReporter(client, "")
	age := 54
	room := "12"
	pc := PatientContextOf(&models.Patient{Name: "John Smith", PatientID: "P001", Age: &age, Room: &room})

	report, err := rep.GenerateReport(context.Background(), "He is stable.", pc)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if report.Priority != models.PriorityMedium || len(report.KeyPoints) != 2 || report.Identify == "" {
		t.Errorf("report = %+v", report)
	}

	req := client.req
	if req.Model != openai.GPT4o || req.Temperature != 0.3 || req.ResponseFormat == nil ||
		req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("request settings = %+v", req)
	}
	user := req.Messages[1].Content
	for _, want := range []string{"John Smith", "P001", "Room: 12", "Age: 54", "Gender: unknown", "He is stable."} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateReportFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeChatClient
	}{
		{"upstream error", &fakeChatClient{err: errors.New("rate limited")}},
		{"not json", &fakeChatClient{content: "Sure! Here is the report"}},
		{"bad priority", &fakeChatClient{content: `{"priority":"urgent"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenAIReporter(tt.client, "gpt-4o").GenerateReport(context.Background(), "text", PatientContext{})
			if errs.KindOf(err) != errs.KindReportGeneration {
				t.Fatalf("expected report generation error, got %v", err)
			}
		})
	}
}

func TestParseReportFillsEmptyLists(t *testing.T) {
	report, err := ParseReport(`{"priority":"LOW"}`)
	if err != nil {
		t.Fatal(err)
	}
	if report.KeyPoints == nil || report.ActionItems == nil || report.Priority != models.PriorityLow {
		t.Errorf("report = %+v", report)
	}
}
