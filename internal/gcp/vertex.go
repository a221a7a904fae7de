package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Caption Model Prompts ---
const CaptionSystemPrompt = "You are an assistant in a furniture workshop. You write short progress notes for customers who follow how their order is being built."
const CaptionUserPrompt = `Look at the attached workshop photo and write one short sentence in Croatian describing the work that is visible.

Mention the material or part being worked on if it is recognisable. Do not guess dates, prices or names. Return only the sentence, without quotes or a preamble.`

// VertexClient holds the pre-configured generative models for the tracker.
type VertexClient struct {
	CaptionModel *genai.GenerativeModel
	baseClient   *genai.Client
}

// NewVertexClient creates a new client holding the caption model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	captionModel := baseClient.GenerativeModel(modelName)
	captionModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(CaptionSystemPrompt)},
	}
	captionModel.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: genai.Ptr[int32](120),
	}

	return &VertexClient{
		CaptionModel: captionModel,
		baseClient:   baseClient,
	}, nil
}

// Caption describes a JPEG photo in one sentence.
func (c *VertexClient) Caption(ctx context.Context, jpeg []byte) (string, error) {
	resp, err := c.CaptionModel.GenerateContent(ctx, genai.ImageData("jpeg", jpeg), genai.Text(CaptionUserPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	return extractText(resp), nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.Trim(strings.TrimSpace(sb.String()), `"`)
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
