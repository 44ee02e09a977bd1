// Package ai wraps the Ark chat model behind the two capabilities the router
// consumes: extracting text from image bytes, and classifying an ambiguous
// query onto the closed tool set.
package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/yuchenx/docpilot/internal/config"
	"github.com/yuchenx/docpilot/internal/tool"
)

// Service holds the chat model and the compiled classifier chain.
type Service struct {
	chatModel  model.ChatModel
	classifier compose.Runnable[map[string]any, *schema.Message]
	logger     zerolog.Logger
}

func NewService(ctx context.Context, cfg config.AIConfig, logger zerolog.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(classifierSystemPrompt),
		schema.UserMessage(classifierUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile classifier chain: %w", err)
	}

	return &Service{
		chatModel:  chatModel,
		classifier: runnable,
		logger:     logger.With().Str("component", "ai").Logger(),
	}, nil
}

const extractionPrompt = "Extract all the text from this image. Return only the extracted text, no explanations."

// ExtractText sends the image to the multimodal model as a base64 data URL
// and returns the model's text verbatim.
func (s *Service) ExtractText(ctx context.Context, data []byte, mime string) (string, error) {
	url := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	messages := []*schema.Message{
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{
					Type: schema.ChatMessagePartTypeText,
					Text: extractionPrompt,
				},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:      url,
						MIMEType: mime,
					},
				},
			},
		},
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("vision model call: %w", err)
	}

	s.logger.Debug().Int("length", len(response.Content)).Msg("text extracted")
	return strings.TrimSpace(response.Content), nil
}

// ClassifyTool asks the model which tool should handle the query. The answer
// is parsed onto the closed set; anything unparseable degrades to KindNone so
// the model can never open a fourth code path.
func (s *Service) ClassifyTool(ctx context.Context, query string, hasTable, hasImage bool) (tool.Kind, error) {
	input := map[string]any{
		"query":     strings.TrimSpace(query),
		"has_csv":   yesNo(hasTable),
		"has_image": yesNo(hasImage),
	}

	msg, err := s.classifier.Invoke(ctx, input)
	if err != nil {
		return tool.KindNone, fmt.Errorf("classifier invoke: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return tool.KindNone, nil
	}

	payload, err := parseClassifierOutput(msg.Content)
	if err != nil {
		s.logger.Warn().Err(err).Msg("classifier output unparseable, treating as none")
		return tool.KindNone, nil
	}
	return parseToolKind(payload.Tool), nil
}

type classifierPayload struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

// parseClassifierOutput tolerates prose or fencing around the JSON object.
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseToolKind(raw string) tool.Kind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "tabular", "csv", "table":
		return tool.KindTabular
	case "image", "vision", "ocr":
		return tool.KindImage
	case "arithmetic", "math":
		return tool.KindArithmetic
	default:
		return tool.KindNone
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

const classifierSystemPrompt = "You dispatch user queries to one of three tools. " +
	"Return only a JSON object with two fields: tool (must be exactly one of tabular/image/arithmetic/none) and reason (one short sentence). " +
	"Pick tabular for questions about a loaded CSV table, image for reading text out of a loaded image, arithmetic for plain calculations, and none when no tool applies. " +
	"Never invent other tool names and never output anything besides the JSON object."

const classifierUserPrompt = "Query:\n{query}\n\nCSV loaded: {has_csv}\nImage loaded: {has_image}\n\nAnswer with the JSON object."
